// Package websession wraps one pion/webrtc PeerConnection with exactly the
// operations the session controller needs: offer/answer creation, remote
// description application, and ICE candidate exchange.
package websession

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

// RemoteTrackHandler is invoked once per inbound audio track. Implementations
// own the decoder and playback pipeline for the lifetime of that track.
type RemoteTrackHandler func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

// Session owns one RTCPeerConnection, one outbound Opus audio track, and
// the ICE candidate channel the controller drains to forward candidates
// over signaling.
type Session struct {
	pc         *webrtc.PeerConnection
	audioTrack *webrtc.TrackLocalStaticSample
	localICE   chan string
}

// New builds a peer connection configured with a single STUN server and one
// outbound Opus audio track, and registers onRemoteTrack as the inbound
// track handler. stunURL is e.g. "stun:stun.l.google.com:19302".
func New(stunURL string, onRemoteTrack RemoteTrackHandler) (*Session, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{stunURL}}},
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=0",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		"voicecore",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create outbound audio track: %w", err)
	}

	sender, err := pc.AddTrack(audioTrack)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("add outbound audio track: %w", err)
	}
	go drainRTCP(sender)

	s := &Session{
		pc:         pc,
		audioTrack: audioTrack,
		localICE:   make(chan string, 32),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		select {
		case s.localICE <- string(b):
		default:
			// Channel full: candidate gathering is bursty but bounded;
			// drop rather than block the pion callback goroutine.
		}
	})

	if onRemoteTrack != nil {
		pc.OnTrack(onRemoteTrack)
	}

	return s, nil
}

// drainRTCP discards RTCP packets so the sender's internal buffers don't
// fill up; pion requires the RTCP reader to be drained even if the
// application has no use for the packets.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// LocalICECandidates returns the channel of JSON-serialized local ICE
// candidates the controller forwards over signaling.
func (s *Session) LocalICECandidates() <-chan string {
	return s.localICE
}

// CreateOffer opens a "chat" data channel (forces ICE gathering), creates
// an offer, sets it as the local description, and returns the SDP.
func (s *Session) CreateOffer() (string, error) {
	if _, err := s.pc.CreateDataChannel("chat", nil); err != nil {
		return "", fmt.Errorf("create chat data channel: %w", err)
	}
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description (offer): %w", err)
	}
	return offer.SDP, nil
}

// CreateAnswer creates an answer, sets it as the local description, and
// returns the SDP.
func (s *Session) CreateAnswer() (string, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description (answer): %w", err)
	}
	return answer.SDP, nil
}

// SDPKind distinguishes an inbound SDP's role for SetRemoteDescription.
type SDPKind int

const (
	SDPOffer SDPKind = iota
	SDPAnswer
)

// SetRemoteDescription applies an inbound SDP. Callers must apply this
// before any IceCandidate arriving for the same cycle;
// the controller enforces that ordering by buffering early candidates.
func (s *Session) SetRemoteDescription(sdp string, kind SDPKind) error {
	desc := webrtc.SessionDescription{SDP: sdp}
	switch kind {
	case SDPOffer:
		desc.Type = webrtc.SDPTypeOffer
	case SDPAnswer:
		desc.Type = webrtc.SDPTypeAnswer
	}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// AddICECandidate parses and applies a JSON-serialized RTCIceCandidateInit.
func (s *Session) AddICECandidate(candidateJSON string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidateJSON), &init); err != nil {
		return fmt.Errorf("decode ice candidate: %w", err)
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("apply ice candidate: %w", err)
	}
	return nil
}

// WriteOpusSample writes one encoded Opus frame to the outbound track.
// pion computes RTP sequence number, timestamp, and SSRC from the sample
// duration. This can block on SRTP/network backpressure, so callers must
// invoke it from the dedicated sender goroutine draining the encoder's
// queue, never from a realtime audio callback.
func (s *Session) WriteOpusSample(opusData []byte, duration time.Duration) error {
	return s.audioTrack.WriteSample(webrtc.Sample{Data: opusData, Duration: duration})
}

// OnConnectionStateChange registers a callback for ICE/DTLS connection
// state transitions, primarily used for diagnostics logging.
func (s *Session) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	s.pc.OnConnectionStateChange(f)
}

// Close gracefully tears down the peer connection so ICE and DTLS shutdown
// run to completion.
func (s *Session) Close() error {
	return s.pc.Close()
}
