// Package signaling defines the wire format exchanged with the rendezvous
// server and the WebSocket client that carries it.
package signaling

// Message types, tagged by the Type field. Lowercase snake_case is an
// intentional deviation from the PascalCase wire tags used elsewhere in
// this family of signaling protocols: this relay and its only client are
// both owned here, so the casing just follows Go JSON tag convention
// instead of carrying over a different language's serde defaults.
const (
	TypeJoin          = "join"
	TypeWelcome       = "welcome"
	TypeLeave         = "leave"
	TypePing          = "ping"
	TypeOffer         = "offer"
	TypeAnswer        = "answer"
	TypeIceCandidate  = "ice_candidate"
	TypeVoiceActivity = "voice_activity"
)

// Message is the tagged union carried over the signaling WebSocket. Every
// variant carries RoomID and ClientID where applicable; omitempty on the
// string fields keeps the wire payload minimal per message type. IsSpeaking
// has no omitempty, so "is_speaking" appears on every message.
type Message struct {
	Type       string `json:"type"`
	RoomID     string `json:"room_id,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	SDP        string `json:"sdp,omitempty"`
	Candidate  string `json:"candidate,omitempty"`
	IsSpeaking bool   `json:"is_speaking"`
}

// Join builds a Join message.
func Join(roomID, clientID string) Message {
	return Message{Type: TypeJoin, RoomID: roomID, ClientID: clientID}
}

// Welcome builds a Welcome message.
func Welcome(roomID, clientID string) Message {
	return Message{Type: TypeWelcome, RoomID: roomID, ClientID: clientID}
}

// Leave builds a Leave message.
func Leave(roomID, clientID string) Message {
	return Message{Type: TypeLeave, RoomID: roomID, ClientID: clientID}
}

// Ping builds a Ping message.
func Ping(roomID, clientID string) Message {
	return Message{Type: TypePing, RoomID: roomID, ClientID: clientID}
}

// Offer builds an Offer message.
func Offer(roomID, sdp string) Message {
	return Message{Type: TypeOffer, RoomID: roomID, SDP: sdp}
}

// Answer builds an Answer message.
func Answer(roomID, sdp string) Message {
	return Message{Type: TypeAnswer, RoomID: roomID, SDP: sdp}
}

// IceCandidate builds an IceCandidate message. candidate is the JSON string
// of an RTCIceCandidateInit.
func IceCandidate(roomID, candidate string) Message {
	return Message{Type: TypeIceCandidate, RoomID: roomID, Candidate: candidate}
}

// VoiceActivity builds a VoiceActivity message.
func VoiceActivity(roomID, clientID string, isSpeaking bool) Message {
	return Message{Type: TypeVoiceActivity, RoomID: roomID, ClientID: clientID, IsSpeaking: isSpeaking}
}
