package models

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/pion/webrtc/v4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SignalType represents the type of call signaling message
type SignalType string

const (
	SignalTypeCallRequest SignalType = "call-request"
	SignalTypeCallAccept  SignalType = "call-accept"
	SignalTypeCallReject  SignalType = "call-reject"
	SignalTypeCallEnd     SignalType = "call-end"
	SignalTypeOffer       SignalType = "offer"
	SignalTypeAnswer      SignalType = "answer"
	SignalTypeCandidate   SignalType = "ice-candidate"
)

// Valid reports whether t is one of the known signal types.
func (t SignalType) Valid() bool {
	switch t {
	case SignalTypeCallRequest, SignalTypeCallAccept, SignalTypeCallReject, SignalTypeCallEnd,
		SignalTypeOffer, SignalTypeAnswer, SignalTypeCandidate:
		return true
	}
	return false
}

// SignalMessage represents a call signaling message
type SignalMessage struct {
	Type     SignalType          `json:"type"`
	SenderID string              `json:"senderId"`
	RoomID   string              `json:"roomId,omitempty"`
	Payload  jsoniter.RawMessage `json:"payload,omitempty"`
}

// MediaPayload is carried by call-request and call-accept.
type MediaPayload struct {
	Video bool `json:"video"`
}

// SDPPayload is carried by offer and answer.
type SDPPayload struct {
	SDP webrtc.SessionDescription `json:"sdp"`
}

// CandidatePayload is carried by ice-candidate.
type CandidatePayload struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// NewSignal builds a message of type t from sender. A nil payload leaves the
// payload empty (call-reject, call-end).
func NewSignal(t SignalType, sender string, payload any) (SignalMessage, error) {
	msg := SignalMessage{Type: t, SenderID: sender}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return msg, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	msg.Payload = raw
	return msg, nil
}

// DecodePayload unmarshals the payload into v.
func (m SignalMessage) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Type, err)
	}
	return nil
}

// Encode serializes a message for the wire.
func Encode(m SignalMessage) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeSignal parses a wire message and rejects unknown types.
func DecodeSignal(data []byte) (SignalMessage, error) {
	var m SignalMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode signal: %w", err)
	}
	if !m.Type.Valid() {
		return m, fmt.Errorf("unknown signal type %q", m.Type)
	}
	return m, nil
}

// Marshal and Unmarshal expose the wire codec to the transports.
func Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
