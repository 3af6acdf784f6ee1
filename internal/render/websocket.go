package render

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"thingcraft.ai/internal/protocol"
	"thingcraft.ai/internal/voxel"
)

// RemoteError is a write the remote world refused.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string { return e.Code + ": " + e.Message }

// WebSocketBackend writes to a remote world server. Every write waits for
// its ACK, so writes are applied in the order they were issued.
type WebSocketBackend struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	seq     uint64
	timeout time.Duration
	welcome protocol.WelcomeMsg
}

// DialWebSocket connects to url and performs the HELLO/WELCOME handshake.
func DialWebSocket(ctx context.Context, url, clientName string, timeout time.Duration) (*WebSocketBackend, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	b := &WebSocketBackend{conn: conn, timeout: timeout}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      clientName,
		AckRequired:     true,
	}
	if err := b.write(ctx, hello); err != nil {
		conn.Close()
		return nil, err
	}
	raw, base, err := b.read(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if base.Type != protocol.TypeWelcome {
		conn.Close()
		return nil, fmt.Errorf("handshake: expected WELCOME, got %s", base.Type)
	}
	if err := json.Unmarshal(raw, &b.welcome); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

// Welcome returns the server's handshake reply.
func (b *WebSocketBackend) Welcome() protocol.WelcomeMsg { return b.welcome }

func (b *WebSocketBackend) Fill(ctx context.Context, box voxel.Box, id uint16, meta uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.roundTrip(ctx, b.seq, protocol.FillMsg{
		Type:            protocol.TypeFill,
		ProtocolVersion: protocol.Version,
		Seq:             b.seq,
		Min:             box.Min,
		Max:             box.Max,
		ID:              id,
		Meta:            meta,
	})
}

func (b *WebSocketBackend) Set(ctx context.Context, pos voxel.Pos, id uint16, meta uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.roundTrip(ctx, b.seq, protocol.SetMsg{
		Type:            protocol.TypeSet,
		ProtocolVersion: protocol.Version,
		Seq:             b.seq,
		Pos:             pos,
		ID:              id,
		Meta:            meta,
	})
}

func (b *WebSocketBackend) roundTrip(ctx context.Context, seq uint64, msg any) error {
	if err := b.write(ctx, msg); err != nil {
		return err
	}
	for {
		raw, base, err := b.read(ctx)
		if err != nil {
			return err
		}
		switch base.Type {
		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(raw, &ack); err != nil {
				return err
			}
			if ack.AckFor != seq {
				continue
			}
			if !ack.Accepted {
				return &RemoteError{Code: ack.Code, Message: ack.Message}
			}
			return nil
		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(raw, &e); err != nil {
				return err
			}
			return &RemoteError{Code: e.Code, Message: e.Message}
		}
	}
}

func (b *WebSocketBackend) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(b.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

func (b *WebSocketBackend) write(ctx context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = b.conn.SetWriteDeadline(b.deadline(ctx))
	return b.conn.WriteMessage(websocket.TextMessage, raw)
}

func (b *WebSocketBackend) read(ctx context.Context) ([]byte, protocol.BaseMessage, error) {
	_ = b.conn.SetReadDeadline(b.deadline(ctx))
	_, raw, err := b.conn.ReadMessage()
	if err != nil {
		return nil, protocol.BaseMessage{}, err
	}
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return nil, base, fmt.Errorf("decode frame: %w", err)
	}
	return raw, base, nil
}

func (b *WebSocketBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = b.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return b.conn.Close()
}
