package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/nsvirk/ocbridge/internal/repository"
	"github.com/nsvirk/ocbridge/internal/workbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type fakeLogin struct {
	cred  models.Credential
	err   error
	calls int

	// when release is set, Login signals started and blocks until release
	started chan struct{}
	release chan struct{}
}

func (f *fakeLogin) Login(ctx context.Context) (models.Credential, error) {
	f.calls++
	if f.release != nil {
		close(f.started)
		select {
		case <-f.release:
		case <-ctx.Done():
			return models.Credential{}, ctx.Err()
		}
	}
	return f.cred, f.err
}

func (f *fakeLogin) Source() string { return "fake" }

type fakeVerifier struct{ ok bool }

func (v fakeVerifier) CheckEnctokenValid(string) (bool, error) { return v.ok, nil }

type fakeRecorder struct{ rows []models.SessionModel }

func (r *fakeRecorder) UpsertSession(_ context.Context, s *models.SessionModel) error {
	r.rows = append(r.rows, *s)
	return nil
}

type fakeNotifier struct{ messages []string }

func (n *fakeNotifier) Notify(_ context.Context, text string) error {
	n.messages = append(n.messages, text)
	return nil
}

type sessionFixture struct {
	svc      *SessionService
	store    repository.CacheStore
	login    *fakeLogin
	opener   *workbook.MemoryOpener
	wb       *workbook.MemoryWorkbook
	recorder *fakeRecorder
	notifier *fakeNotifier
	now      time.Time
}

func newSessionFixture(t *testing.T, opts ...SessionOption) *sessionFixture {
	t.Helper()
	store, err := repository.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &sessionFixture{
		store:    store,
		login:    &fakeLogin{cred: models.Credential{UserID: "AB1234", Token: "fresh-token"}},
		wb:       workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain"),
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
		now:      time.Date(2025, 10, 16, 16, 59, 0, 0, ist),
	}
	f.opener = &workbook.MemoryOpener{Workbook: f.wb}
	opts = append([]SessionOption{
		WithClock(func() time.Time { return f.now }),
		WithCutoff(17, 0, ist),
		WithRecorder(f.recorder),
		WithNotifier(f.notifier),
	}, opts...)
	f.svc = NewSessionService(store, f.login, f.opener, workbook.DefaultLayout, opts...)
	return f
}

func (f *sessionFixture) cache(t *testing.T, ts time.Time) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), repository.CredentialCacheKey, models.CachedCredential{
		UserID: "AB1234", Enctoken: "cached-token", Timestamp: ts,
	}))
}

func TestSessionState(t *testing.T) {
	morning := time.Date(2025, 10, 16, 9, 0, 0, 0, ist)
	tests := []struct {
		name   string
		cached *time.Time
		now    time.Time
		want   SessionState
	}{
		{"no cache", nil, time.Date(2025, 10, 16, 10, 0, 0, 0, ist), SessionAbsent},
		{"same day before cutoff", &morning, time.Date(2025, 10, 16, 16, 59, 0, 0, ist), SessionValid},
		{"same day after cutoff", &morning, time.Date(2025, 10, 16, 17, 1, 0, 0, ist), SessionInvalid},
		{"exactly at cutoff", &morning, time.Date(2025, 10, 16, 17, 0, 0, 0, ist), SessionInvalid},
		{"next day", &morning, time.Date(2025, 10, 17, 9, 0, 0, 0, ist), SessionInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t)
			f.now = tt.now
			if tt.cached != nil {
				f.cache(t, *tt.cached)
			}
			state, _ := f.svc.State(context.Background())
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestSessionStateUnparseableCache(t *testing.T) {
	f := newSessionFixture(t)
	fs := f.store.(*repository.FileStore)
	require.NoError(t, writeFile(fs.Path(repository.CredentialCacheKey), "not json"))
	state, _ := f.svc.State(context.Background())
	assert.Equal(t, SessionAbsent, state)
}

func TestEnsureCredentialUsesValidCache(t *testing.T) {
	f := newSessionFixture(t)
	f.cache(t, time.Date(2025, 10, 16, 9, 0, 0, 0, ist))

	cred, err := f.svc.EnsureCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Credential{UserID: "AB1234", Token: "cached-token"}, cred)
	assert.Zero(t, f.login.calls)
	assert.Empty(t, f.wb.Writes)
	assert.Empty(t, f.notifier.messages)
}

func TestEnsureCredentialLogsInAfterCutoff(t *testing.T) {
	f := newSessionFixture(t)
	f.cache(t, time.Date(2025, 10, 16, 9, 0, 0, 0, ist))
	f.now = time.Date(2025, 10, 16, 17, 1, 0, 0, ist)

	cred, err := f.svc.EnsureCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", cred.Token)
	assert.Equal(t, 1, f.login.calls)

	assert.Equal(t, "AB1234", f.wb.Get("F587"))
	assert.Equal(t, "fresh-token", f.wb.Get("F615"))
	assert.Equal(t, 1, f.wb.Saves)

	var cached models.CachedCredential
	require.NoError(t, f.store.Load(context.Background(), repository.CredentialCacheKey, &cached))
	assert.Equal(t, "fresh-token", cached.Enctoken)
	assert.True(t, cached.Timestamp.Equal(f.now))

	require.Len(t, f.recorder.rows, 1)
	assert.Equal(t, "fake", f.recorder.rows[0].Source)
	assert.Len(t, f.notifier.messages, 1)
}

func TestEnsureCredentialRejectedByVerifier(t *testing.T) {
	f := newSessionFixture(t, WithVerifier(fakeVerifier{ok: false}))
	f.cache(t, time.Date(2025, 10, 16, 9, 0, 0, 0, ist))

	cred, err := f.svc.EnsureCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", cred.Token)
	assert.Equal(t, 1, f.login.calls)
}

func TestEnsureCredentialLoginFailure(t *testing.T) {
	f := newSessionFixture(t)
	f.login.err = ErrLoginTimeout

	_, err := f.svc.EnsureCredential(context.Background())
	assert.ErrorIs(t, err, ErrLoginTimeout)
	assert.Empty(t, f.wb.Writes)

	state, _ := f.svc.State(context.Background())
	assert.Equal(t, SessionAbsent, state)
	assert.Len(t, f.notifier.messages, 2)
}

func TestEnsureCredentialWriteBackFailure(t *testing.T) {
	f := newSessionFixture(t)
	f.opener.Err = workbook.ErrWorkbookNotFound

	_, err := f.svc.EnsureCredential(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, workbook.ErrWorkbookNotFound))

	state, _ := f.svc.State(context.Background())
	assert.Equal(t, SessionAbsent, state)
	assert.Empty(t, f.recorder.rows)
}

func TestSessionExpire(t *testing.T) {
	f := newSessionFixture(t)
	f.cache(t, time.Date(2025, 10, 16, 9, 0, 0, 0, ist))
	require.NoError(t, f.svc.Expire(context.Background()))
	state, _ := f.svc.State(context.Background())
	assert.Equal(t, SessionAbsent, state)
}
