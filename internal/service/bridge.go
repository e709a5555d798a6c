package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
	"golang.org/x/sync/singleflight"
)

var ErrNotInitialized = errors.New("system not initialized, call initialize first")

// initializeTimeout bounds a shared Initialize run, which no single caller owns
const initializeTimeout = 5 * time.Minute

// Terminal keeps the program that feeds the workbook alive
type Terminal interface {
	EnsureRunning(ctx context.Context) error
	Stop() error
}

// InitResult is returned by Initialize
type InitResult struct {
	Options            models.DropdownResult
	AlreadyInitialized bool
}

// Bridge ties the session, dropdown and fetch services into one system
type Bridge struct {
	terminal  Terminal
	sessions  *SessionService
	dropdowns *DropdownService
	fetcher   *FetchService

	group       singleflight.Group
	initTimeout time.Duration

	mu      sync.RWMutex
	ready   bool
	options *models.DropdownResult
}

// NewBridge wires the services together; terminal may be nil
func NewBridge(terminal Terminal, sessions *SessionService, dropdowns *DropdownService, fetcher *FetchService) *Bridge {
	return &Bridge{
		terminal:    terminal,
		sessions:    sessions,
		dropdowns:   dropdowns,
		fetcher:     fetcher,
		initTimeout: initializeTimeout,
	}
}

// Initialize makes sure a credential is in place and the dropdowns are
// known. Concurrent callers share a single run.
func (b *Bridge) Initialize(ctx context.Context) (InitResult, error) {
	b.mu.RLock()
	if b.ready && b.options != nil {
		res := InitResult{Options: *b.options, AlreadyInitialized: true}
		b.mu.RUnlock()
		return res, nil
	}
	b.mu.RUnlock()

	// The run is shared, so it must not die with the caller that started it
	ch := b.group.DoChan("initialize", func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.initTimeout)
		defer cancel()
		return b.initialize(runCtx)
	})
	select {
	case <-ctx.Done():
		return InitResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return InitResult{}, res.Err
		}
		if res.Shared {
			zaplogger.Debug("joined in-flight initialize")
		}
		return InitResult{Options: res.Val.(models.DropdownResult)}, nil
	}
}

func (b *Bridge) initialize(ctx context.Context) (models.DropdownResult, error) {
	if b.terminal != nil {
		if err := b.terminal.EnsureRunning(ctx); err != nil {
			zaplogger.Warn("terminal not confirmed running", zaplogger.Fields{"error": err.Error()})
		}
	}

	if _, err := b.sessions.EnsureCredential(ctx); err != nil {
		return models.DropdownResult{}, err
	}

	options := b.dropdowns.Resolve(ctx)

	b.mu.Lock()
	b.options = &options
	b.ready = true
	b.mu.Unlock()

	zaplogger.Info("system initialized", zaplogger.Fields{"sources": options.Sources})
	return options, nil
}

// Ready reports whether Fetch can be served
func (b *Bridge) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// DropdownOptions returns the options found by Initialize
func (b *Bridge) DropdownOptions() (models.DropdownResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.options == nil {
		return models.DropdownResult{}, ErrNotInitialized
	}
	return *b.options, nil
}

// RefreshDropdowns re-reads the dropdowns of an initialized bridge
func (b *Bridge) RefreshDropdowns(ctx context.Context) (models.DropdownResult, error) {
	if !b.Ready() {
		return models.DropdownResult{}, ErrNotInitialized
	}
	options := b.dropdowns.Resolve(ctx)
	b.mu.Lock()
	b.options = &options
	b.mu.Unlock()
	return options, nil
}

// InvalidateDropdowns is called when the workbook changes on disk. An
// initialized bridge re-reads the options, which also rewrites the cache.
// Before initialization only the persisted lists are dropped.
func (b *Bridge) InvalidateDropdowns(ctx context.Context) error {
	if !b.Ready() {
		return b.dropdowns.InvalidateCache(ctx)
	}
	options, err := b.RefreshDropdowns(ctx)
	if err != nil {
		return err
	}
	zaplogger.Info("dropdowns reloaded", zaplogger.Fields{"sources": options.Sources})
	return nil
}

// Fetch runs one data fetch with the current credential
func (b *Bridge) Fetch(ctx context.Context, req models.FetchRequest) (*models.OptionChainSnapshot, error) {
	if !b.Ready() {
		return nil, ErrNotInitialized
	}
	state, cached := b.sessions.State(ctx)
	if state != SessionValid {
		zaplogger.Warn("credential no longer valid", zaplogger.Fields{"state": string(state)})
		b.Expire()
		return nil, ErrNotInitialized
	}
	return b.fetcher.Fetch(ctx, cached.Credential(), req)
}

// SessionStatus reports the credential state without exposing the token
func (b *Bridge) SessionStatus(ctx context.Context) (SessionState, string) {
	state, cached := b.sessions.State(ctx)
	if cached == nil {
		return state, ""
	}
	return state, cached.UserID
}

// BreakerState is the state of the workbook circuit breaker
func (b *Bridge) BreakerState() string {
	return b.fetcher.BreakerState()
}

// Expire marks the bridge not ready so the next request initializes again
func (b *Bridge) Expire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = false
}

// Close stops a terminal the bridge started
func (b *Bridge) Close() error {
	b.Expire()
	if b.terminal != nil {
		return b.terminal.Stop()
	}
	return nil
}
