package models

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalWireFormat(t *testing.T) {
	msg, err := NewSignal(SignalTypeOffer, "alice", SDPPayload{
		SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})
	require.NoError(t, err)
	msg.RoomID = "booking-42"

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "offer",
		"senderId": "alice",
		"roomId": "booking-42",
		"payload": {"sdp": {"type": "offer", "sdp": "v=0"}}
	}`, string(data))
}

func TestSignalWithoutPayload(t *testing.T) {
	msg, err := NewSignal(SignalTypeCallEnd, "bob", nil)
	require.NoError(t, err)

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "call-end", "senderId": "bob"}`, string(data))

	var p MediaPayload
	assert.Error(t, msg.DecodePayload(&p))
}

func TestDecodeSignal(t *testing.T) {
	msg, err := DecodeSignal([]byte(`{"type":"ice-candidate","senderId":"bob","payload":{"candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 9 typ host","sdpMid":"0","sdpMLineIndex":0}}}`))
	require.NoError(t, err)
	assert.Equal(t, SignalTypeCandidate, msg.Type)

	var p CandidatePayload
	require.NoError(t, msg.DecodePayload(&p))
	assert.Equal(t, "candidate:1 1 udp 1 10.0.0.1 9 typ host", p.Candidate.Candidate)
	require.NotNil(t, p.Candidate.SDPMid)
	assert.Equal(t, "0", *p.Candidate.SDPMid)

	_, err = DecodeSignal([]byte(`{"type":"join","senderId":"bob"}`))
	assert.Error(t, err)
	_, err = DecodeSignal([]byte(`not json`))
	assert.Error(t, err)
}

func TestRoomParticipants(t *testing.T) {
	room := RoomMetadata{ID: "booking-42", Participants: []string{"alice", "bob"}}

	assert.True(t, room.HasParticipant("alice"))
	assert.False(t, room.HasParticipant("mallory"))
	assert.Equal(t, "bob", room.OtherParticipant("alice"))
	assert.Equal(t, "alice", room.OtherParticipant("bob"))
}
