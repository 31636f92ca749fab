package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

const (
	DefaultCountdown = 10 * time.Second
	DefaultTick      = time.Second

	handshakeTimeout = 10 * time.Second
)

// Messages shown to the visitor when the flow ends in Failed.
const (
	MessageNotFound  = "invalid or expired link"
	MessageFailure   = "something went wrong, please try again later"
	MessageNoContent = "no items available"
)

var (
	ErrNotReady    = errors.New("verification is not available yet")
	ErrNotVerified = errors.New("link is not verified yet")
	ErrNoContent   = errors.New(MessageNoContent)
	ErrClosed      = errors.New("gateway closed")
	ErrNoResolver  = errors.New("no redirect resolver configured")
)

type Handshaker interface {
	StartHandshake(ctx context.Context, token string) error
}

// Opener performs the verification side effect for the chosen item.
type Opener interface {
	Open(ctx context.Context, item domain.ContentItem) error
}

// Keeper persists the token on the visitor side so a flow can be resumed.
type Keeper interface {
	Save(token string) error
	Load() (string, error)
}

type Timer interface {
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type emptyCollection struct{}

func (emptyCollection) Items(context.Context) ([]domain.ContentItem, error) { return nil, nil }

type unresolved struct{}

func (unresolved) Resolve(context.Context, string) (string, error) { return "", ErrNoResolver }

type Config struct {
	Countdown time.Duration
	Tick      time.Duration
}

type Deps struct {
	Handshaker Handshaker
	Resolver   ports.RedirectResolver
	Collection ports.ContentCollection
	Opener     Opener
	Keeper     Keeper
	Clock      Clock
	Logger     *slog.Logger
	Intn       func(n int) int
	OnChange   func(Snapshot)
}

// Snapshot is a copy of the visible machine state.
type Snapshot struct {
	State       State
	Token       string
	Remaining   time.Duration
	Item        *domain.ContentItem
	Destination string
	Message     string
}

type Machine struct {
	cfg  Config
	deps Deps

	mu          sync.Mutex
	state       State
	token       string
	remaining   time.Duration
	timer       Timer
	item        *domain.ContentItem
	destination string
	message     string
	closed      bool
}

func New(cfg Config, deps Deps) *Machine {
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultCountdown
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Intn == nil {
		deps.Intn = rand.IntN
	}
	if deps.Collection == nil {
		deps.Collection = emptyCollection{}
	}
	if deps.Resolver == nil {
		deps.Resolver = unresolved{}
	}
	return &Machine{cfg: cfg, deps: deps, state: PendingToken}
}

// Start begins the flow for token, or for the kept token when token is empty.
// Without any token the machine stays inert in PendingToken.
func (m *Machine) Start(token string) State {
	token = strings.TrimSpace(token)

	m.mu.Lock()
	if m.closed || m.state != PendingToken {
		state := m.state
		m.mu.Unlock()
		return state
	}

	if token == "" && m.deps.Keeper != nil {
		kept, err := m.deps.Keeper.Load()
		if err != nil {
			m.deps.Logger.Warn("could not load kept token", "error", err)
		}
		token = strings.TrimSpace(kept)
	}
	if token == "" {
		m.mu.Unlock()
		return PendingToken
	}
	if m.deps.Keeper != nil {
		if err := m.deps.Keeper.Save(token); err != nil {
			m.deps.Logger.Warn("could not keep token", "token", token, "error", err)
		}
	}

	m.token = token
	m.state = CountingDown
	m.remaining = m.cfg.Countdown
	m.timer = m.deps.Clock.AfterFunc(m.tickInterval(), m.tick)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.startHandshake(token)
	m.emit(snap)
	return CountingDown
}

func (m *Machine) startHandshake(token string) {
	if m.deps.Handshaker == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		defer cancel()
		if err := m.deps.Handshaker.StartHandshake(ctx, token); err != nil {
			m.deps.Logger.Warn("handshake start failed", "token", token, "error", err)
		}
	}()
}

func (m *Machine) tickInterval() time.Duration {
	if m.remaining < m.cfg.Tick {
		return m.remaining
	}
	return m.cfg.Tick
}

// tick is the only transition out of CountingDown.
func (m *Machine) tick() {
	m.mu.Lock()
	if m.closed || m.state != CountingDown {
		m.mu.Unlock()
		return
	}

	m.remaining -= m.tickInterval()
	if m.remaining <= 0 {
		m.remaining = 0
		m.state = AwaitingVerification
		m.timer = nil
	} else {
		m.timer = m.deps.Clock.AfterFunc(m.tickInterval(), m.tick)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(snap)
}

// Verify sends the visitor to a random content item and marks the link verified.
// It is refused until the countdown is over; repeating it once verified is allowed.
func (m *Machine) Verify(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != AwaitingVerification && m.state != Verified {
		m.mu.Unlock()
		return ErrNotReady
	}
	token := m.token
	m.mu.Unlock()

	items, err := m.deps.Collection.Items(ctx)
	if err != nil {
		m.deps.Logger.Warn("could not load content", "token", token, "error", err)
		return fmt.Errorf("load content: %w", err)
	}
	if len(items) == 0 {
		m.fail(MessageNoContent)
		return ErrNoContent
	}

	item := items[m.deps.Intn(len(items))]
	if m.deps.Opener != nil {
		if err := m.deps.Opener.Open(ctx, item); err != nil {
			return fmt.Errorf("open %s: %w", item.URL, err)
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == AwaitingVerification {
		m.state = Verified
	}
	m.item = &item
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(snap)
	return nil
}

// Continue resolves the token once verified and returns the destination.
func (m *Machine) Continue(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	if m.state != Verified {
		m.mu.Unlock()
		return "", ErrNotVerified
	}
	m.state = Resolving
	token := m.token
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.emit(snap)

	destination, err := m.deps.Resolver.Resolve(ctx, token)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	if err != nil {
		m.state = Failed
		m.message = MessageFailure
		if errors.Is(err, domain.ErrNotFound) {
			m.message = MessageNotFound
		}
	} else {
		m.state = Redirected
		m.destination = destination
	}
	snap = m.snapshotLocked()
	m.mu.Unlock()

	m.emit(snap)
	if err != nil {
		return "", err
	}
	return destination, nil
}

// Close tears the flow down and cancels a pending countdown tick.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) fail(message string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state = Failed
	m.message = message
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(snap)
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:       m.state,
		Token:       m.token,
		Remaining:   m.remaining,
		Destination: m.destination,
		Message:     m.message,
	}
	if m.item != nil {
		it := *m.item
		snap.Item = &it
	}
	return snap
}

func (m *Machine) emit(snap Snapshot) {
	if m.deps.OnChange != nil {
		m.deps.OnChange(snap)
	}
}
