package call

import (
	"github.com/rs/zerolog"

	"github.com/mossy-p/webrtc-signaling/internal/models"
)

func (s *Session) handleSignal(msg models.SignalMessage) {
	// Our own broadcast coming back.
	if msg.SenderID == s.selfID {
		return
	}
	if msg.RoomID != "" && msg.RoomID != s.roomID {
		return
	}

	l := s.log.With().Str("signal", string(msg.Type)).Str("from", msg.SenderID).Logger()

	switch st := s.st.(type) {
	case idle:
		if msg.Type == models.SignalTypeCallRequest {
			s.ring(l, msg)
			return
		}
	case calling:
		switch msg.Type {
		case models.SignalTypeCallAccept:
			s.offer(l, st, msg.SenderID)
			return
		case models.SignalTypeCallReject, models.SignalTypeCallEnd:
			s.release()
			return
		case models.SignalTypeCallRequest:
			// Both sides rang at once. The lower participant id keeps
			// calling, the other side yields and rings instead.
			if msg.SenderID < s.selfID {
				s.ring(l, msg)
			}
			return
		}
	case incoming:
		if msg.Type == models.SignalTypeCallEnd && msg.SenderID == st.caller {
			s.setState(idle{})
			return
		}
	case *connected:
		if msg.SenderID != st.peer {
			break
		}
		switch msg.Type {
		case models.SignalTypeOffer:
			s.applyOffer(l, st, msg)
			return
		case models.SignalTypeAnswer:
			s.applyAnswer(l, st, msg)
			return
		case models.SignalTypeCandidate:
			s.addRemoteCandidate(l, st, msg)
			return
		case models.SignalTypeCallEnd:
			s.release()
			return
		}
	}

	l.Debug().Str("state", s.st.State().String()).Msg("ignoring signal")
}

func (s *Session) ring(l zerolog.Logger, msg models.SignalMessage) {
	var p models.MediaPayload
	if err := msg.DecodePayload(&p); err != nil {
		l.Warn().Err(err).Msg("malformed call request")
		return
	}
	s.setState(incoming{caller: msg.SenderID, withVideo: p.Video})
}

// offer runs on the original caller once the callee accepted. Only this side
// ever creates an offer, so the two peers cannot offer at the same time.
func (s *Session) offer(l zerolog.Logger, st calling, peer string) {
	c, err := s.connect(s.ctx, peer, st.withVideo, roleOfferer)
	if err != nil {
		l.Warn().Err(err).Msg("cannot start media after accept")
		s.setState(idle{})
		s.send(models.SignalTypeCallEnd, nil)
		return
	}
	s.setState(c)

	desc, err := c.pc.CreateOffer()
	if err == nil {
		err = c.pc.SetLocalDescription(desc)
	}
	if err != nil {
		l.Warn().Err(err).Msg("create offer")
		s.send(models.SignalTypeCallEnd, nil)
		s.release()
		return
	}

	c.awaitingAnswer = true
	s.send(models.SignalTypeOffer, models.SDPPayload{SDP: desc})
}

func (s *Session) applyOffer(l zerolog.Logger, c *connected, msg models.SignalMessage) {
	if c.role != roleAnswerer || c.pc.RemoteDescription() != nil {
		l.Debug().Msg("unexpected offer")
		return
	}
	var p models.SDPPayload
	if err := msg.DecodePayload(&p); err != nil {
		l.Warn().Err(err).Msg("malformed offer")
		return
	}
	if err := c.pc.SetRemoteDescription(p.SDP); err != nil {
		l.Warn().Err(err).Msg("set remote offer")
		return
	}
	s.flushCandidates(l, c)

	answer, err := c.pc.CreateAnswer()
	if err == nil {
		err = c.pc.SetLocalDescription(answer)
	}
	if err != nil {
		l.Warn().Err(err).Msg("create answer")
		return
	}
	s.send(models.SignalTypeAnswer, models.SDPPayload{SDP: answer})
}

func (s *Session) applyAnswer(l zerolog.Logger, c *connected, msg models.SignalMessage) {
	if c.role != roleOfferer || !c.awaitingAnswer {
		l.Debug().Msg("answer without outstanding offer")
		return
	}
	var p models.SDPPayload
	if err := msg.DecodePayload(&p); err != nil {
		l.Warn().Err(err).Msg("malformed answer")
		return
	}
	if err := c.pc.SetRemoteDescription(p.SDP); err != nil {
		l.Warn().Err(err).Msg("set remote answer")
		return
	}
	c.awaitingAnswer = false
	s.flushCandidates(l, c)
}

func (s *Session) addRemoteCandidate(l zerolog.Logger, c *connected, msg models.SignalMessage) {
	var p models.CandidatePayload
	if err := msg.DecodePayload(&p); err != nil {
		l.Warn().Err(err).Msg("malformed candidate")
		return
	}
	if c.pc.RemoteDescription() == nil {
		c.pending = append(c.pending, p.Candidate)
		return
	}
	if err := c.pc.AddICECandidate(p.Candidate); err != nil {
		l.Warn().Err(err).Msg("add ICE candidate")
	}
}

// flushCandidates applies queued candidates in arrival order.
func (s *Session) flushCandidates(l zerolog.Logger, c *connected) {
	for _, cand := range c.pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			l.Warn().Err(err).Msg("add queued ICE candidate")
		}
	}
	c.pending = nil
}
