package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"thingcraft.ai/internal/protocol"
	"thingcraft.ai/internal/render"
	"thingcraft.ai/internal/voxel"
	"thingcraft.ai/internal/world/store"
)

// Server exposes a world over the FILL/SET protocol. Writes from all
// sessions are applied to the target one at a time in arrival order.
type Server struct {
	target render.Backend
	params protocol.WorldParams
	log    *log.Logger

	mu       sync.Mutex
	upgrader websocket.Upgrader
	maxFill  int

	sessions atomic.Int64
	applied  atomic.Int64
	rejected atomic.Int64
}

// NewServer serves writes into target. maxFillVolume <= 0 disables the
// per-FILL volume limit.
func NewServer(target render.Backend, params protocol.WorldParams, maxFillVolume int, logger *log.Logger) *Server {
	s := &Server{
		target:  target,
		params:  params,
		log:     logger,
		maxFill: maxFillVolume,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// Stats reports live sessions and applied/rejected writes.
func (s *Server) Stats() (sessions, applied, rejected int64) {
	return s.sessions.Load(), s.applied.Load(), s.rejected.Load()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, ack := s.handshake(conn)
		if sessionID == "" {
			return
		}
		s.sessions.Inc()
		defer s.sessions.Dec()
		s.log.Printf("session %s connected from %s", sessionID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 64)

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply, fatal := s.handle(ctx, msg, ack)
			if reply != nil {
				b, err := json.Marshal(reply)
				if err != nil {
					break
				}
				select {
				case out <- b:
				case <-ctx.Done():
				}
			}
			if fatal {
				break
			}
		}
		close(out)
		<-done
		s.log.Printf("session %s closed", sessionID)
	}
}

// handle applies one frame. fatal means the session must end after reply
// is sent.
func (s *Server) handle(ctx context.Context, msg []byte, ack bool) (reply any, fatal bool) {
	base, err := protocol.ValidateMessage(msg)
	if err != nil {
		code := protocol.ErrProtoBadRequest
		var ve *protocol.ValidationError
		if errors.As(err, &ve) {
			code = ve.Code
		}
		return protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: err.Error()}, true
	}
	var seq uint64
	switch base.Type {
	case protocol.TypeFill:
		var m protocol.FillMsg
		if err = json.Unmarshal(msg, &m); err == nil {
			seq = m.Seq
			err = s.fill(ctx, m)
		}
	case protocol.TypeSet:
		var m protocol.SetMsg
		if err = json.Unmarshal(msg, &m); err == nil {
			seq = m.Seq
			err = s.set(ctx, m)
		}
	default:
		return protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: protocol.ErrProtoBadRequest, Message: "unexpected " + base.Type}, true
	}
	if err != nil {
		s.rejected.Inc()
		return protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: seq, Accepted: false, Code: codeFor(err), Message: err.Error()}, false
	}
	s.applied.Inc()
	if !ack {
		return nil, false
	}
	return protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: seq, Accepted: true}, false
}

func (s *Server) fill(ctx context.Context, m protocol.FillMsg) error {
	box, err := voxel.NewBox(m.Min, m.Max)
	if err != nil {
		return err
	}
	n, ok := box.CheckedVolume()
	if !ok || (s.maxFill > 0 && n > s.maxFill) {
		return errors.New("fill volume exceeds server limit")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target.Fill(ctx, box, m.ID, m.Meta)
}

func (s *Server) set(ctx context.Context, m protocol.SetMsg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target.Set(ctx, m.Pos, m.ID, m.Meta)
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, store.ErrOutOfBounds):
		return protocol.ErrOutOfBounds
	case errors.Is(err, voxel.ErrInvalidCuboid):
		return protocol.ErrInvalidCuboid
	default:
		return protocol.ErrBadRequest
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, ack bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", false
	}
	if _, err := protocol.ValidateMessage(msg); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad HELLO"), time.Now().Add(time.Second))
		return "", false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}

	sessionID = uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		World:           s.params,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", false
	}
	return sessionID, hello.AckRequired
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
