package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

const (
	DefaultClickWorkers   = 4
	DefaultClickQueueSize = 1024

	clickWriteTimeout = 5 * time.Second
)

// ClickAccountant counts clicks on a bounded queue drained by a worker pool.
// A full queue drops the click; counts are eventually accurate, not exact.
type ClickAccountant struct {
	store  ports.TokenStore
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan string
	wg     sync.WaitGroup
}

func NewClickAccountant(store ports.TokenStore, logger *slog.Logger, workers, queueSize int) *ClickAccountant {
	if workers < 1 {
		workers = DefaultClickWorkers
	}
	if queueSize < 1 {
		queueSize = DefaultClickQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	a := &ClickAccountant{
		store:  store,
		logger: logger,
		now:    time.Now,
		queue:  make(chan string, queueSize),
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for token := range a.queue {
				a.record(token)
			}
		}()
	}
	return a
}

// RecordClick never blocks the caller.
func (a *ClickAccountant) RecordClick(token string) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.logger.Warn("click accountant closed, dropping click", "token", token)
		return
	}
	select {
	case a.queue <- token:
	default:
		a.logger.Warn("click queue full, dropping click", "token", token)
	}
}

func (a *ClickAccountant) record(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), clickWriteTimeout)
	defer cancel()

	if err := a.store.IncrementClicks(ctx, token); err != nil {
		a.logger.Warn("click not recorded",
			"token", token,
			"error", fmt.Errorf("%w: %w", domain.ErrClickRecordingFailed, err),
		)
	}
}

// RecordHandshakeStart marks the first view of token. Repeat calls keep the first timestamp.
// Unknown tokens are accepted silently so the endpoint does not reveal which tokens exist.
func (a *ClickAccountant) RecordHandshakeStart(ctx context.Context, token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}
	err := a.store.MarkFirstViewed(ctx, token, a.now().UTC())
	if errors.Is(err, domain.ErrNotFound) {
		a.logger.Debug("handshake for unknown token", "token", token)
		return nil
	}
	return err
}

// Close stops accepting clicks and waits for queued ones to be written.
func (a *ClickAccountant) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
}

var _ ports.ClickAccountant = (*ClickAccountant)(nil)
