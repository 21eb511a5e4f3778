package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_JSONRoundTrip(t *testing.T) {
	cases := []Message{
		Join("room-1", "client-a"),
		Welcome("room-1", "client-b"),
		Leave("room-1", "client-a"),
		Ping("room-1", "client-a"),
		Offer("room-1", "v=0\r\n..."),
		Answer("room-1", "v=0\r\n..."),
		IceCandidate("room-1", `{"candidate":"..."}`),
		VoiceActivity("room-1", "client-a", true),
	}

	for _, msg := range cases {
		b, err := json.Marshal(msg)
		require.NoError(t, err)

		var decoded Message
		require.NoError(t, json.Unmarshal(b, &decoded))
		assert.Equal(t, msg, decoded)
	}
}

func TestMessage_OmitsZeroFields(t *testing.T) {
	b, err := json.Marshal(Ping("room-1", "client-a"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))

	_, hasSDP := raw["sdp"]
	_, hasCandidate := raw["candidate"]
	assert.False(t, hasSDP)
	assert.False(t, hasCandidate)
}
