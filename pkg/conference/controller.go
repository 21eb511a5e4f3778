// Package conference implements the per-room session controller: the state
// machine that owns one signaling connection and one WebRTC peer session at
// a time, reconnecting and rebuilding both on any failure.
package conference

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/kestrelvoice/voicecore/pkg/applog"
	"github.com/kestrelvoice/voicecore/pkg/audio"
	"github.com/kestrelvoice/voicecore/pkg/events"
	"github.com/kestrelvoice/voicecore/pkg/jitter"
	"github.com/kestrelvoice/voicecore/pkg/signaling"
	"github.com/kestrelvoice/voicecore/pkg/vad"
	"github.com/kestrelvoice/voicecore/pkg/websession"
)

// State names the controller's current phase.
type State int

const (
	StateConnecting State = iota
	StateAnnounced
	StateNegotiating
	StateConnected
	StateResetPending
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAnnounced:
		return "announced"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateResetPending:
		return "reset_pending"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role determines who creates the offer. Roles are elected deterministically
// by comparing client IDs lexicographically so both sides agree without a
// coordinator.
type Role int

const (
	RoleOfferer Role = iota
	RoleAnswerer
)

const (
	defaultHeartbeatInterval = 2 * time.Second
	defaultPeerTimeoutCheck  = 1 * time.Second
	defaultResetDrainDelay   = 500 * time.Millisecond
	defaultReconnectBackoff  = 3 * time.Second
)

// outboundQueueDepth bounds the encoder->sender channel (§5, §9). VAD/DTX
// already bounds steady-state production to talking frames only, so this
// only needs to absorb a brief sender stall, not sustained backpressure.
const outboundQueueDepth = 64

// outboundPacket is one Opus-encoded frame queued for the sender goroutine.
type outboundPacket struct {
	data     []byte
	duration time.Duration
}

// Options configures one Controller instance.
type Options struct {
	RoomID        string
	LocalClientID string
	SignalingURL  string
	StunURL       string
	AudioState    *AudioState
	Emitter       events.Emitter
	Logger        applog.Logger

	VADThreshold      float32
	VADHangoverFrames int
	JitterTarget      int

	// HeartbeatInterval, PeerTimeoutCheck, PeerTimeout, ReconnectBackoff,
	// and ResetDrain default to the defaultXxx consts above when zero,
	// letting config.Config override the cycle's pacing without every
	// caller needing to know the defaults.
	HeartbeatInterval time.Duration
	PeerTimeoutCheck  time.Duration
	PeerTimeout       time.Duration
	ReconnectBackoff  time.Duration
	ResetDrain        time.Duration
}

// Controller runs the full lifecycle for one room membership: dial
// signaling, announce, elect a role, negotiate SDP/ICE, stream audio, and
// rebuild from scratch on any failure. One Controller instance is one
// room session.
type Controller struct {
	opts Options

	running atomic.Bool
	state   atomic.Int32

	peers *peerTable
}

// New constructs a Controller. Call Run to start the lifecycle loop; call
// Stop to request a graceful, non-abrupt shutdown.
func New(opts Options) *Controller {
	if opts.VADThreshold == 0 {
		opts.VADThreshold = vad.DefaultThreshold
	}
	if opts.VADHangoverFrames == 0 {
		opts.VADHangoverFrames = vad.DefaultHangoverFrames
	}
	if opts.JitterTarget == 0 {
		opts.JitterTarget = jitter.TargetSamples
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.PeerTimeoutCheck == 0 {
		opts.PeerTimeoutCheck = defaultPeerTimeoutCheck
	}
	if opts.PeerTimeout == 0 {
		opts.PeerTimeout = defaultPeerTimeout
	}
	if opts.ReconnectBackoff == 0 {
		opts.ReconnectBackoff = defaultReconnectBackoff
	}
	if opts.ResetDrain == 0 {
		opts.ResetDrain = defaultResetDrainDelay
	}
	c := &Controller{opts: opts, peers: newPeerTable(opts.PeerTimeout)}
	c.running.Store(true)
	c.setState(StateConnecting)
	return c
}

// Stop clears the running flag. Run observes it at the next natural
// checkpoint (message loop iteration, heartbeat tick, or reconnect
// backoff) and exits to StateClosed. It never force-kills an in-flight
// PeerConnection close.
func (c *Controller) Stop() {
	c.running.Store(false)
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// State reports the controller's current phase.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Run drives the reconnect-forever loop until Stop is called. It returns
// once the controller has settled into StateClosed.
func (c *Controller) Run(ctx context.Context) {
	for c.running.Load() {
		if err := c.runOneCycle(ctx); err != nil {
			c.opts.Logger.Warn("session cycle ended", zap.Error(err))
		}
		if !c.running.Load() {
			break
		}
		c.setState(StateResetPending)
		time.Sleep(c.opts.ResetDrain)
		if !c.running.Load() {
			break
		}
		time.Sleep(c.opts.ReconnectBackoff)
	}
	c.setState(StateClosed)
}

// runOneCycle dials signaling, negotiates with exactly one remote peer, and
// pumps messages/audio until the connection drops or Stop is requested.
func (c *Controller) runOneCycle(ctx context.Context) error {
	c.setState(StateConnecting)

	sig, err := signaling.Dial(c.opts.SignalingURL)
	if err != nil {
		return fmt.Errorf("dial signaling: %w", err)
	}
	defer sig.Close()

	if err := sig.Send(signaling.Join(c.opts.RoomID, c.opts.LocalClientID)); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	c.setState(StateAnnounced)

	vadGate := vad.NewGate(c.opts.VADThreshold, c.opts.VADHangoverFrames)
	enc, err := audio.NewEncoder()
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}

	var peerSession *websession.Session
	var remoteClientID string
	var role Role
	var pendingCandidates []string
	negotiated := false

	// activeSession mirrors peerSession for the sender goroutine below: it
	// is written only from this cycle's main goroutine (here and in
	// closeSession) and read from the dedicated sender goroutine, so a
	// plain closure-captured variable would race. An atomic pointer lets
	// the sender goroutine see the current session without ever sharing a
	// lock with the realtime capture callback.
	var activeSession atomic.Pointer[websession.Session]

	onRemoteTrack := func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.handleRemoteTrack(track)
	}

	closeSession := func() {
		activeSession.Store(nil)
		if peerSession != nil {
			peerSession.Close()
			peerSession = nil
		}
	}
	defer closeSession()

	startNegotiation := func() error {
		peerSession, err = websession.New(c.opts.StunURL, onRemoteTrack)
		if err != nil {
			return fmt.Errorf("create peer session: %w", err)
		}
		activeSession.Store(peerSession)
		peerSession.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
			c.opts.Logger.Debug(fmt.Sprintf("peer connection state: %s", s))
		})
		go c.forwardLocalICE(sig, peerSession)

		if role == RoleOfferer {
			sdp, err := peerSession.CreateOffer()
			if err != nil {
				return fmt.Errorf("create offer: %w", err)
			}
			if err := sig.Send(signaling.Offer(c.opts.RoomID, sdp)); err != nil {
				return fmt.Errorf("send offer: %w", err)
			}
		}
		return nil
	}

	// cycleDone is the per-cycle audio flag: closing it tears down this
	// cycle's capture device before the next cycle opens a new one.
	// Distinct from c.running, which is the session-wide flag the
	// Conference manager clears on leave/switch.
	cycleDone := make(chan struct{})
	defer close(cycleDone)

	// outbound is the encoder-to-sender bridge (§5, §9): the capture
	// callback only ever pushes onto this bounded channel, never calling
	// WriteSample itself, so a slow or blocked outbound write can never
	// stall the realtime audio thread. A dedicated sender goroutine drains
	// it and is the only caller of WriteOpusSample.
	outbound := make(chan outboundPacket, outboundQueueDepth)
	go func() {
		for {
			select {
			case <-cycleDone:
				return
			case pkt := <-outbound:
				if s := activeSession.Load(); s != nil {
					if err := s.WriteOpusSample(pkt.data, pkt.duration); err != nil {
						c.opts.Logger.Warn("write opus sample failed", zap.Error(err))
					}
				}
			}
		}
	}()

	go c.runInputPipeline(vadGate, enc, cycleDone, func(opusData []byte, d time.Duration) {
		select {
		case outbound <- outboundPacket{data: opusData, duration: d}:
		default:
			c.opts.Logger.Warn("dropping opus packet: sender backlog full")
		}
	}, func(isTalking bool) {
		if err := sig.Send(signaling.VoiceActivity(c.opts.RoomID, c.opts.LocalClientID, isTalking)); err != nil {
			c.opts.Logger.Warn("send voice activity failed", zap.Error(err))
		}
	})

	heartbeat := time.NewTicker(c.opts.HeartbeatInterval)
	defer heartbeat.Stop()
	timeoutCheck := time.NewTicker(c.opts.PeerTimeoutCheck)
	defer timeoutCheck.Stop()

	msgCh := make(chan signaling.Message, 16)
	errCh := make(chan error, 1)
	go func() {
		for {
			msg, err := sig.Recv()
			if err != nil {
				errCh <- err
				return
			}
			msgCh <- msg
		}
	}()

	for c.running.Load() {
		select {
		case <-ctx.Done():
			// The Manager cancels only after Stop: fall through to the
			// orderly shutdown below instead of skipping it.
			if c.running.Load() {
				return ctx.Err()
			}

		case err := <-errCh:
			return fmt.Errorf("signaling connection lost: %w", err)

		case <-heartbeat.C:
			if err := sig.Send(signaling.Ping(c.opts.RoomID, c.opts.LocalClientID)); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}

		case <-timeoutCheck.C:
			for _, stale := range c.peers.TimedOut(time.Now()) {
				c.peers.Remove(stale)
				c.opts.Emitter.Emit(events.PeerLeft, stale)
				if stale == remoteClientID {
					return fmt.Errorf("peer %s timed out", stale)
				}
			}

		case msg := <-msgCh:
			switch msg.Type {
			case signaling.TypeJoin:
				if msg.ClientID == c.opts.LocalClientID {
					continue
				}
				isNew := c.peers.Touch(msg.ClientID, time.Now())
				if isNew {
					c.opts.Emitter.Emit(events.PeerJoined, msg.ClientID)
				}
				if err := sig.Send(signaling.Welcome(c.opts.RoomID, c.opts.LocalClientID)); err != nil {
					return fmt.Errorf("send welcome: %w", err)
				}
				if !negotiated {
					remoteClientID = msg.ClientID
					role = electRole(c.opts.LocalClientID, remoteClientID)
					negotiated = true
					c.setState(StateNegotiating)
					if err := startNegotiation(); err != nil {
						return err
					}
				}

			case signaling.TypeWelcome:
				if msg.ClientID == c.opts.LocalClientID {
					continue
				}
				if isNew := c.peers.Touch(msg.ClientID, time.Now()); isNew {
					c.opts.Emitter.Emit(events.PeerJoined, msg.ClientID)
				}
				if !negotiated {
					remoteClientID = msg.ClientID
					role = electRole(c.opts.LocalClientID, remoteClientID)
					negotiated = true
					c.setState(StateNegotiating)
					if err := startNegotiation(); err != nil {
						return err
					}
				}

			case signaling.TypeLeave:
				if msg.ClientID == c.opts.LocalClientID {
					continue
				}
				if c.peers.Remove(msg.ClientID) {
					c.opts.Emitter.Emit(events.PeerLeft, msg.ClientID)
				}
				if msg.ClientID == remoteClientID {
					return fmt.Errorf("peer %s left", msg.ClientID)
				}

			case signaling.TypePing:
				if msg.ClientID != c.opts.LocalClientID {
					c.peers.Touch(msg.ClientID, time.Now())
				}

			case signaling.TypeOffer:
				if peerSession == nil {
					continue
				}
				if err := peerSession.SetRemoteDescription(msg.SDP, websession.SDPOffer); err != nil {
					return fmt.Errorf("apply remote offer: %w", err)
				}
				if err := c.flushPendingCandidates(peerSession, &pendingCandidates); err != nil {
					return err
				}
				answer, err := peerSession.CreateAnswer()
				if err != nil {
					return fmt.Errorf("create answer: %w", err)
				}
				if err := sig.Send(signaling.Answer(c.opts.RoomID, answer)); err != nil {
					return fmt.Errorf("send answer: %w", err)
				}
				c.setState(StateConnected)

			case signaling.TypeAnswer:
				if peerSession == nil {
					continue
				}
				if err := peerSession.SetRemoteDescription(msg.SDP, websession.SDPAnswer); err != nil {
					return fmt.Errorf("apply remote answer: %w", err)
				}
				if err := c.flushPendingCandidates(peerSession, &pendingCandidates); err != nil {
					return err
				}
				c.setState(StateConnected)

			case signaling.TypeIceCandidate:
				if peerSession == nil || !negotiated {
					continue
				}
				if c.State() < StateConnected {
					// Remote description may not be set yet: buffer.
					pendingCandidates = append(pendingCandidates, msg.Candidate)
					continue
				}
				if err := peerSession.AddICECandidate(msg.Candidate); err != nil {
					c.opts.Logger.Warn("discarding ice candidate", zap.Error(err))
				}

			case signaling.TypeVoiceActivity:
				if msg.ClientID != c.opts.LocalClientID {
					c.opts.Emitter.Emit(events.RemoteVoiceActivity, events.RemoteVoiceActivityPayload{
						ClientID:   msg.ClientID,
						IsSpeaking: msg.IsSpeaking,
					})
				}
			}
		}
	}

	// Orderly shutdown: every peer still tracked here got a peer-joined
	// with no matching peer-left yet (Leave and timeout already emit their
	// own as they happen). §8 invariant 1 requires that pairing to close
	// on session shutdown too.
	for _, id := range c.peers.DrainAll() {
		c.opts.Emitter.Emit(events.PeerLeft, id)
	}

	if err := sig.Send(signaling.Leave(c.opts.RoomID, c.opts.LocalClientID)); err != nil {
		c.opts.Logger.Warn("send leave on shutdown", zap.Error(err))
	}
	return nil
}

// flushPendingCandidates applies and clears candidates buffered before the
// remote description was available.
func (c *Controller) flushPendingCandidates(s *websession.Session, pending *[]string) error {
	for _, cand := range *pending {
		if err := s.AddICECandidate(cand); err != nil {
			c.opts.Logger.Warn("discarding buffered ice candidate", zap.Error(err))
		}
	}
	*pending = nil
	return nil
}

// forwardLocalICE relays locally gathered ICE candidates to the remote peer
// over signaling as they arrive.
func (c *Controller) forwardLocalICE(sig *signaling.Client, s *websession.Session) {
	for cand := range s.LocalICECandidates() {
		if err := sig.Send(signaling.IceCandidate(c.opts.RoomID, cand)); err != nil {
			return
		}
	}
}

// electRole compares client IDs lexicographically: the greater ID offers.
// Both peers run this independently and always agree.
func electRole(localID, remoteID string) Role {
	ids := []string{localID, remoteID}
	sort.Strings(ids)
	if ids[len(ids)-1] == localID {
		return RoleOfferer
	}
	return RoleAnswerer
}

// runInputPipeline owns the capture device for the lifetime of one cycle:
// VAD-gates each 20ms frame, encodes talking frames to Opus, and emits
// local voice-activity transitions. DTX means silent frames are never
// encoded or sent.
//
// cycleDone is the per-cycle audio flag (closed by runOneCycle when the
// cycle ends): it tears this capture device down immediately on
// ResetPending, distinct from the session-wide c.running flag the
// Conference manager clears on leave/switch. Both are wired into the
// device's running check so a device callback in flight during either
// teardown sees it at once.
func (c *Controller) runInputPipeline(gate *vad.Gate, enc *audio.Encoder, cycleDone <-chan struct{}, send func([]byte, time.Duration), onVoiceActivity func(bool)) {
	state := c.opts.AudioState
	cycleActive := func() bool {
		select {
		case <-cycleDone:
			return false
		default:
			return c.running.Load()
		}
	}
	in, err := audio.OpenInputStream(
		cycleActive,
		func() bool { return state.IsMuted.Load() },
		func() {
			if changed := gate.ForceSilence(); changed {
				c.opts.Emitter.Emit(events.VoiceActivity, false)
				onVoiceActivity(false)
			}
		},
		func(frame []float32) {
			isTalking, changed := gate.Process(frame)
			if changed {
				c.opts.Emitter.Emit(events.VoiceActivity, isTalking)
				onVoiceActivity(isTalking)
			}
			if !isTalking {
				return
			}
			payload, err := enc.Encode(frame)
			if err != nil {
				c.opts.Logger.Warn("opus encode failed", zap.Error(err))
				return
			}
			send(payload, 20*time.Millisecond)
		},
	)
	if err != nil {
		c.opts.Logger.Error("failed to open input stream", err)
		return
	}
	defer in.Stop()

	for {
		select {
		case <-cycleDone:
			return
		case <-time.After(100 * time.Millisecond):
			if !c.running.Load() {
				return
			}
		}
	}
}

// handleRemoteTrack owns one inbound audio track for its lifetime: decode
// each RTP payload into the jitter buffer and drive an output device from
// it, both torn down together when the track ends.
func (c *Controller) handleRemoteTrack(track *webrtc.TrackRemote) {
	dec, err := audio.NewDecoder()
	if err != nil {
		c.opts.Logger.Error("failed to create opus decoder", err)
		return
	}

	jb := jitter.New(c.opts.JitterTarget, audio.SampleRate, audio.SampleRate, func() bool {
		return c.opts.AudioState.IsDeafened.Load()
	})

	var deviceRate int
	out, err := audio.OpenOutputStream(&deviceRate, func(buf []float32) {
		jb.Fill(buf)
	})
	if err != nil {
		c.opts.Logger.Error("failed to open output stream", err)
		return
	}
	defer out.Stop()

	if deviceRate != 0 && deviceRate != audio.SampleRate {
		jb.SetDeviceRate(deviceRate)
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		pcm, err := dec.Decode(pkt.Payload)
		if err != nil {
			// A lost packet still needs PLC so the jitter buffer timeline
			// doesn't drift; best effort, ignore errors here.
			pcm, err = dec.DecodeLost(audio.FrameSamplesPerChannel)
			if err != nil {
				continue
			}
		}
		jb.Push(pcm)
	}
}
