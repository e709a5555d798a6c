package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/nsvirk/ocbridge/internal/repository"
	"github.com/nsvirk/ocbridge/internal/workbook"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
)

// SessionState classifies the cached credential
type SessionState string

const (
	SessionAbsent  SessionState = "absent"
	SessionValid   SessionState = "valid"
	SessionInvalid SessionState = "invalid"
)

// Notifier delivers operator messages
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// SessionRecorder keeps an audit row per login
type SessionRecorder interface {
	UpsertSession(ctx context.Context, session *models.SessionModel) error
}

// SessionService owns the day's Kite credential. It is the only writer of
// the credential cells and of the credential cache entry.
type SessionService struct {
	cache    repository.CacheStore
	login    LoginFlow
	opener   workbook.Opener
	layout   workbook.Layout
	verifier TokenVerifier
	recorder SessionRecorder
	notifier Notifier

	now          func() time.Time
	loc          *time.Location
	cutoffHour   int
	cutoffMinute int

	mu sync.Mutex
}

// SessionOption configures optional collaborators
type SessionOption func(*SessionService)

func WithVerifier(v TokenVerifier) SessionOption {
	return func(s *SessionService) { s.verifier = v }
}

func WithRecorder(r SessionRecorder) SessionOption {
	return func(s *SessionService) { s.recorder = r }
}

func WithNotifier(n Notifier) SessionOption {
	return func(s *SessionService) { s.notifier = n }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

// WithCutoff sets the local time of day after which cached credentials expire
func WithCutoff(hour, minute int, loc *time.Location) SessionOption {
	return func(s *SessionService) {
		s.cutoffHour, s.cutoffMinute = hour, minute
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewSessionService creates the orchestrator with a 17:00 local cutoff
func NewSessionService(cache repository.CacheStore, login LoginFlow, opener workbook.Opener, layout workbook.Layout, opts ...SessionOption) *SessionService {
	s := &SessionService{
		cache:      cache,
		login:      login,
		opener:     opener,
		layout:     layout,
		now:        time.Now,
		loc:        time.Local,
		cutoffHour: 17,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports whether the cached credential can be used right now
func (s *SessionService) State(ctx context.Context) (SessionState, *models.CachedCredential) {
	var cached models.CachedCredential
	if err := s.cache.Load(ctx, repository.CredentialCacheKey, &cached); err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			zaplogger.Warn("credential cache unreadable", zaplogger.Fields{"error": err.Error()})
		}
		return SessionAbsent, nil
	}
	if cached.Enctoken == "" || cached.Timestamp.IsZero() {
		return SessionAbsent, nil
	}
	if s.sameDayBeforeCutoff(cached.Timestamp) {
		return SessionValid, &cached
	}
	return SessionInvalid, &cached
}

func (s *SessionService) sameDayBeforeCutoff(ts time.Time) bool {
	now := s.now().In(s.loc)
	ts = ts.In(s.loc)
	y1, m1, d1 := now.Date()
	y2, m2, d2 := ts.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		return false
	}
	cutoff := time.Date(y1, m1, d1, s.cutoffHour, s.cutoffMinute, 0, 0, s.loc)
	return now.Before(cutoff)
}

// EnsureCredential returns today's credential, logging in when the cache
// cannot be used. A failed login is returned as is; nothing is cached.
func (s *SessionService) EnsureCredential(ctx context.Context) (models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, cached := s.State(ctx)
	if state == SessionValid && s.verify(cached.Enctoken) {
		zaplogger.Info("using cached credential", zaplogger.Fields{
			"user_id":   cached.UserID,
			"logged_in": cached.Timestamp.Format(time.DateTime),
		})
		return cached.Credential(), nil
	}
	zaplogger.Info("login required", zaplogger.Fields{"state": string(state), "flow": s.login.Source()})
	s.notify(ctx, "Option chain bridge: Kite login required ("+string(state)+" session)")

	cred, err := s.runLogin(ctx)
	if err != nil {
		s.notify(ctx, "Option chain bridge: Kite login failed: "+err.Error())
		return models.Credential{}, err
	}
	if !cred.Valid() {
		return models.Credential{}, ErrTokenNotFound
	}

	if err := s.writeBack(ctx, cred); err != nil {
		return models.Credential{}, err
	}

	loginTime := s.now()
	record := models.CachedCredential{UserID: cred.UserID, Enctoken: cred.Token, Timestamp: loginTime}
	if err := s.cache.Save(ctx, repository.CredentialCacheKey, record); err != nil {
		zaplogger.Warn("credential cache save failed", zaplogger.Fields{"error": err.Error()})
	}

	if s.recorder != nil {
		row := &models.SessionModel{
			UserId:    cred.UserID,
			Enctoken:  cred.Token,
			LoginTime: loginTime,
			Source:    s.login.Source(),
		}
		if err := s.recorder.UpsertSession(ctx, row); err != nil {
			zaplogger.Warn("session audit write failed", zaplogger.Fields{"error": err.Error()})
		}
	}

	zaplogger.Info("login complete", zaplogger.Fields{
		"user_id":  cred.UserID,
		"enctoken": zaplogger.Mask(cred.Token),
	})
	return cred, nil
}

// verify asks Kite about a cached token when a verifier is configured.
// Verification errors are treated as a rejected token.
func (s *SessionService) verify(enctoken string) bool {
	if s.verifier == nil {
		return true
	}
	ok, err := s.verifier.CheckEnctokenValid(enctoken)
	if err != nil {
		zaplogger.Warn("enctoken check failed", zaplogger.Fields{"error": err.Error()})
		return false
	}
	return ok
}

// writeBack stores the credential in the workbook and saves it
func (s *SessionService) writeBack(ctx context.Context, cred models.Credential) error {
	wb, err := s.opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("credential write-back: %w", err)
	}
	defer wb.Close()

	if err := WriteCredential(wb, s.layout, cred); err != nil {
		return fmt.Errorf("credential write-back: %w", err)
	}
	if err := wb.Save(); err != nil {
		return fmt.Errorf("credential write-back: save: %w", err)
	}
	return nil
}

// WriteCredential writes user id and token into their cells
func WriteCredential(wb workbook.Workbook, layout workbook.Layout, cred models.Credential) error {
	if err := wb.SetValue(layout.UserID, cred.UserID); err != nil {
		return fmt.Errorf("write %s: %w", layout.UserID, err)
	}
	if err := wb.SetValue(layout.Enctoken, cred.Token); err != nil {
		return fmt.Errorf("write %s: %w", layout.Enctoken, err)
	}
	return nil
}

// Expire drops the cached credential so the next call logs in again
func (s *SessionService) Expire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Delete(ctx, repository.CredentialCacheKey)
}

func (s *SessionService) runLogin(ctx context.Context) (models.Credential, error) {
	defer zaplogger.TimeTrack(time.Now(), s.login.Source()+" login")
	return s.login.Login(ctx)
}

func (s *SessionService) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		zaplogger.Warn("notification failed", zaplogger.Fields{"error": err.Error()})
	}
}
