package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestValidateMessage_Samples(t *testing.T) {
	cases := []struct {
		name string
		msg  any
		typ  string
	}{
		{"hello", HelloMsg{Type: TypeHello, ProtocolVersion: Version, ClientName: "mcthings", AckRequired: true}, TypeHello},
		{"welcome", WelcomeMsg{Type: TypeWelcome, ProtocolVersion: Version, SessionID: "S1", World: WorldParams{Air: 0}}, TypeWelcome},
		{"fill", FillMsg{Type: TypeFill, ProtocolVersion: Version, Seq: 1, Min: [3]int{0, 0, 0}, Max: [3]int{1, 1, 0}, ID: 1, Meta: 0}, TypeFill},
		{"set", SetMsg{Type: TypeSet, ProtocolVersion: Version, Seq: 2, Pos: [3]int{-4, 64, 9}, ID: 35, Meta: 14}, TypeSet},
		{"ack", AckMsg{Type: TypeAck, ProtocolVersion: Version, AckFor: 2, Accepted: true}, TypeAck},
		{"error", ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: ErrProtoBadRequest, Message: "bad"}, TypeError},
	}
	for _, tc := range cases {
		base, err := ValidateMessage(mustJSON(t, tc.msg))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if base.Type != tc.typ {
			t.Fatalf("%s: type=%q want %q", tc.name, base.Type, tc.typ)
		}
	}
}

func TestValidateMessage_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		code string
	}{
		{"not json", `{`, ErrProtoBadRequest},
		{"unknown type", `{"type":"OBS","protocol_version":"1.0"}`, ErrProtoBadRequest},
		{"meta out of range", `{"type":"SET","protocol_version":"1.0","seq":1,"pos":[0,0,0],"id":1,"meta":16}`, ErrProtoBadRequest},
		{"short pos", `{"type":"SET","protocol_version":"1.0","seq":1,"pos":[0,0],"id":1,"meta":0}`, ErrProtoBadRequest},
		{"id overflow", `{"type":"FILL","protocol_version":"1.0","seq":1,"min":[0,0,0],"max":[0,0,0],"id":70000,"meta":0}`, ErrProtoBadRequest},
		{"extra field", `{"type":"HELLO","protocol_version":"1.0","client_name":"x","token":"t"}`, ErrProtoBadRequest},
		{"wrong version", `{"type":"HELLO","protocol_version":"0.1","client_name":"x"}`, ErrProtoVersion},
	}
	for _, tc := range cases {
		_, err := ValidateMessage([]byte(tc.raw))
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if ve.Code != tc.code {
			t.Fatalf("%s: code=%s want %s", tc.name, ve.Code, tc.code)
		}
	}
}

func TestDecodeBase(t *testing.T) {
	b, err := DecodeBase([]byte(`{"type":"ACK","protocol_version":"1.0","ack_for":3,"accepted":false}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Type != TypeAck || b.ProtocolVersion != Version {
		t.Fatalf("unexpected base: %+v", b)
	}
}
