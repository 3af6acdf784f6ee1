package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// AckRequired asks the server to answer every write with an ACK.
	AckRequired bool `json:"ack_required,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	World           WorldParams `json:"world"`
}

type WorldParams struct {
	Air     uint16 `json:"air"`
	Bounded bool   `json:"bounded"`
	Min     [3]int `json:"min,omitempty"`
	Max     [3]int `json:"max,omitempty"`
}

// FILL (client -> server): one block into every cell of an inclusive cuboid.
type FillMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Min             [3]int `json:"min"`
	Max             [3]int `json:"max"`
	ID              uint16 `json:"id"`
	Meta            uint8  `json:"meta"`
}

// SET (client -> server): one cell.
type SetMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Pos             [3]int `json:"pos"`
	ID              uint16 `json:"id"`
	Meta            uint8  `json:"meta"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          uint64 `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// ERROR (server -> client) is sent for frames that cannot be routed, then
// the connection is closed.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
