package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	urls      []string
	cookies   map[string]string
	storage   map[string]string
	headers   []map[string]string
	cookieErr error

	navigated string
	urlCalls  int
	closed    bool
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) error {
	b.navigated = url
	return nil
}

func (b *fakeBrowser) URL(context.Context) (string, error) {
	i := b.urlCalls
	b.urlCalls++
	if len(b.urls) == 0 {
		return "", nil
	}
	if i >= len(b.urls) {
		i = len(b.urls) - 1
	}
	return b.urls[i], nil
}

func (b *fakeBrowser) Cookies(context.Context) (map[string]string, error) {
	return b.cookies, b.cookieErr
}

func (b *fakeBrowser) StorageItem(_ context.Context, key string) (string, error) {
	return b.storage[key], nil
}

func (b *fakeBrowser) ResponseHeaders() []map[string]string { return b.headers }

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

func quickLogin(b *fakeBrowser) *BrowserLogin {
	return &BrowserLogin{
		NewBrowser: func(context.Context) (Browser, error) { return b, nil },
		LoginURL:   "https://kite.zerodha.com/",
		Wait:       50 * time.Millisecond,
		Poll:       time.Millisecond,
	}
}

func TestResolveCredential(t *testing.T) {
	tests := []struct {
		name    string
		browser *fakeBrowser
		want    models.Credential
	}{
		{
			name:    "cookies",
			browser: &fakeBrowser{cookies: map[string]string{"enctoken": "c00kie", "user_id": "AB1234"}},
			want:    models.Credential{UserID: "AB1234", Token: "c00kie"},
		},
		{
			name:    "cookies without user id",
			browser: &fakeBrowser{cookies: map[string]string{"enctoken": "c00kie"}},
			want:    models.Credential{UserID: UnknownUserID, Token: "c00kie"},
		},
		{
			name: "storage after cookie error",
			browser: &fakeBrowser{
				cookieErr: errors.New("devtools gone"),
				storage:   map[string]string{"enctoken": "st0rage", "user_id": "XY9876"},
			},
			want: models.Credential{UserID: "XY9876", Token: "st0rage"},
		},
		{
			name: "network log",
			browser: &fakeBrowser{
				cookies: map[string]string{"kf_session": "x"},
				storage: map[string]string{"user_id": "XY9876"},
				headers: []map[string]string{
					{"content-type": "application/json"},
					{"Set-Cookie": "kf_session=abc; path=/\nenctoken=h3ader+tok==; path=/; secure"},
				},
			},
			want: models.Credential{UserID: "XY9876", Token: "h3ader+tok=="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveCredential(context.Background(), tt.browser)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveCredentialNotFound(t *testing.T) {
	b := &fakeBrowser{
		cookies: map[string]string{"enctoken": ""},
		headers: []map[string]string{{"set-cookie": "public_token=abc; path=/"}},
	}
	_, err := ResolveCredential(context.Background(), b)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestEnctokenFromSetCookie(t *testing.T) {
	assert.Equal(t, "abc", enctokenFromSetCookie("enctoken=abc; Path=/"))
	assert.Equal(t, "abc", enctokenFromSetCookie("enctoken=abc"))
	assert.Equal(t, "", enctokenFromSetCookie("enctoken=; Path=/"))
	assert.Equal(t, "", enctokenFromSetCookie("user_id=AB1234"))
}

func TestBrowserLogin(t *testing.T) {
	b := &fakeBrowser{
		urls:    []string{"https://kite.zerodha.com/", "https://kite.zerodha.com/", "https://kite.zerodha.com/dashboard"},
		cookies: map[string]string{"enctoken": "tok", "user_id": "AB1234"},
	}
	login := quickLogin(b)

	cred, err := login.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Credential{UserID: "AB1234", Token: "tok"}, cred)
	assert.Equal(t, "https://kite.zerodha.com/", b.navigated)
	assert.Equal(t, 3, b.urlCalls)
	assert.True(t, b.closed)
	assert.Equal(t, models.LoginSourceBrowser, login.Source())
}

func TestBrowserLoginTimeout(t *testing.T) {
	b := &fakeBrowser{
		urls:    []string{"https://kite.zerodha.com/connect/login"},
		cookies: map[string]string{"enctoken": "tok"},
	}
	_, err := quickLogin(b).Login(context.Background())
	assert.ErrorIs(t, err, ErrLoginTimeout)
	assert.True(t, b.closed)
}

func TestBrowserLoginStartFailure(t *testing.T) {
	login := &BrowserLogin{
		NewBrowser: func(context.Context) (Browser, error) { return nil, errors.New("chrome not installed") },
	}
	_, err := login.Login(context.Background())
	assert.ErrorIs(t, err, ErrLoginFailed)
}

func TestTOTPLogin(t *testing.T) {
	login := &TOTPLogin{
		userID:     "AB1234",
		password:   "secret",
		totpSecret: "JBSWY3DPEHPK3PXP",
		totp:       func(string) (string, error) { return "123456", nil },
		generate: func(userID, password, totp string) (models.Credential, error) {
			assert.Equal(t, "AB1234", userID)
			assert.Equal(t, "secret", password)
			assert.Equal(t, "123456", totp)
			return models.Credential{Token: "t0tp"}, nil
		},
	}
	cred, err := login.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Credential{UserID: "AB1234", Token: "t0tp"}, cred)

	login.generate = func(string, string, string) (models.Credential, error) {
		return models.Credential{}, errors.New("invalid totp")
	}
	_, err = login.Login(context.Background())
	assert.ErrorIs(t, err, ErrLoginFailed)
}
