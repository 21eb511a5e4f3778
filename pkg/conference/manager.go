package conference

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelvoice/voicecore/pkg/applog"
	"github.com/kestrelvoice/voicecore/pkg/events"
)

// swapDrainDelay is how long Manager waits after signaling the previous
// session to stop before starting the next one, giving its audio devices
// and peer connection time to release cleanly.
const swapDrainDelay = 1 * time.Second

// AudioState holds the mute/deafen flags shared between the UI-facing
// Manager and the per-cycle audio pipeline run by Controller. Both fields
// are read and written from different goroutines, hence atomics.
type AudioState struct {
	IsMuted    atomic.Bool
	IsDeafened atomic.Bool
}

// Manager owns at most one active Controller at a time and mediates
// Join/Leave calls against it: only one room session runs per app
// instance.
type Manager struct {
	mu         sync.Mutex
	active     *Controller
	cancelFunc context.CancelFunc

	signalingURL string
	stunURL      string

	localClientID string
	logger        applog.Logger

	vadThreshold      float32
	vadHangoverFrames int
	jitterTarget      int

	heartbeatInterval time.Duration
	peerTimeoutCheck  time.Duration
	peerTimeout       time.Duration
	reconnectBackoff  time.Duration
	resetDrain        time.Duration
}

// ManagerOptions configures a Manager for the lifetime of the process.
type ManagerOptions struct {
	SignalingURL      string
	StunURL           string
	Logger            applog.Logger
	VADThreshold      float32
	VADHangoverFrames int
	JitterTarget      int

	// HeartbeatInterval, PeerTimeoutCheck, PeerTimeout, ReconnectBackoff,
	// and ResetDrain pass straight through to Options on each Join; leave
	// zero to use the Controller's built-in defaults.
	HeartbeatInterval time.Duration
	PeerTimeoutCheck  time.Duration
	PeerTimeout       time.Duration
	ReconnectBackoff  time.Duration
	ResetDrain        time.Duration
}

// NewManager builds a Manager with a freshly generated local client ID,
// generated once per app instance.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Noop()
	}
	return &Manager{
		signalingURL:      opts.SignalingURL,
		stunURL:           opts.StunURL,
		localClientID:     uuid.NewString(),
		logger:            logger,
		vadThreshold:      opts.VADThreshold,
		vadHangoverFrames: opts.VADHangoverFrames,
		jitterTarget:      opts.JitterTarget,
		heartbeatInterval: opts.HeartbeatInterval,
		peerTimeoutCheck:  opts.PeerTimeoutCheck,
		peerTimeout:       opts.PeerTimeout,
		reconnectBackoff:  opts.ReconnectBackoff,
		resetDrain:        opts.ResetDrain,
	}
}

// LocalClientID returns this app instance's stable identifier.
func (m *Manager) LocalClientID() string {
	return m.localClientID
}

// Join starts a new session for roomID, tearing down any previously active
// session first. The teardown is cooperative: clear the old controller's
// running flag, release the lock, sleep to let it drain, then start the
// new one — never force-abort an in-flight PeerConnection.
func (m *Manager) Join(app events.Emitter, roomID string, audioState *AudioState) error {
	if roomID == "" {
		return fmt.Errorf("join: room id must not be empty")
	}

	m.mu.Lock()
	previous := m.active
	prevCancel := m.cancelFunc
	m.active = nil
	m.cancelFunc = nil
	m.mu.Unlock()

	if previous != nil {
		previous.Stop()
		if prevCancel != nil {
			prevCancel()
		}
		time.Sleep(swapDrainDelay)
	}

	ctrl := New(Options{
		RoomID:            roomID,
		LocalClientID:     m.localClientID,
		SignalingURL:      m.signalingURL,
		StunURL:           m.stunURL,
		AudioState:        audioState,
		Emitter:           app,
		Logger:            m.logger,
		VADThreshold:      m.vadThreshold,
		VADHangoverFrames: m.vadHangoverFrames,
		JitterTarget:      m.jitterTarget,
		HeartbeatInterval: m.heartbeatInterval,
		PeerTimeoutCheck:  m.peerTimeoutCheck,
		PeerTimeout:       m.peerTimeout,
		ReconnectBackoff:  m.reconnectBackoff,
		ResetDrain:        m.resetDrain,
	})

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.active = ctrl
	m.cancelFunc = cancel
	m.mu.Unlock()

	go ctrl.Run(ctx)
	return nil
}

// Leave stops the active session, if any, and waits for its drain delay
// the same way Join does before starting a replacement.
func (m *Manager) Leave(app events.Emitter) error {
	m.mu.Lock()
	ctrl := m.active
	cancel := m.cancelFunc
	m.active = nil
	m.cancelFunc = nil
	m.mu.Unlock()

	if ctrl == nil {
		return nil
	}
	ctrl.Stop()
	if cancel != nil {
		cancel()
	}
	time.Sleep(swapDrainDelay)
	return nil
}

// ActiveState reports the current controller's state, or StateClosed if
// there is no active session.
func (m *Manager) ActiveState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return StateClosed
	}
	return m.active.State()
}
