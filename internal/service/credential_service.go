package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nsvirk/ocbridge/internal/fallback"
	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
)

var (
	ErrLoginTimeout  = errors.New("login timed out before the dashboard loaded")
	ErrTokenNotFound = errors.New("enctoken not found in cookies, storage or network log")
	ErrLoginFailed   = errors.New("login failed")
)

// UnknownUserID is used when a token is found without a user id
const UnknownUserID = "UNKNOWN"

// Browser is the part of a browser session the credential resolver needs
type Browser interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Cookies(ctx context.Context) (map[string]string, error)
	StorageItem(ctx context.Context, key string) (string, error)
	// ResponseHeaders returns every captured response header set
	ResponseHeaders() []map[string]string
	Close() error
}

// LoginFlow produces a fresh credential
type LoginFlow interface {
	Login(ctx context.Context) (models.Credential, error)
	// Source names the flow on the session audit row
	Source() string
}

// BrowserLogin waits for a manual Kite login in a real browser and then
// scrapes the enctoken out of it
type BrowserLogin struct {
	NewBrowser func(ctx context.Context) (Browser, error)
	LoginURL   string
	// Wait bounds the time the user has to finish logging in
	Wait time.Duration
	Poll time.Duration
	// Settle is the pause after the dashboard appears, Linger the pause before close
	Settle time.Duration
	Linger time.Duration
}

// NewBrowserLogin returns a flow with the production timings
func NewBrowserLogin(newBrowser func(ctx context.Context) (Browser, error), loginURL string, wait time.Duration) *BrowserLogin {
	return &BrowserLogin{
		NewBrowser: newBrowser,
		LoginURL:   loginURL,
		Wait:       wait,
		Poll:       time.Second,
		Settle:     2 * time.Second,
		Linger:     3 * time.Second,
	}
}

func (l *BrowserLogin) Source() string { return models.LoginSourceBrowser }

func (l *BrowserLogin) Login(ctx context.Context) (models.Credential, error) {
	b, err := l.NewBrowser(ctx)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	defer func() {
		sleepCtx(ctx, l.Linger)
		if err := b.Close(); err != nil {
			zaplogger.Warn("browser close failed", zaplogger.Fields{"error": err.Error()})
		}
	}()

	if err := b.Navigate(ctx, l.LoginURL); err != nil {
		return models.Credential{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	zaplogger.Info("waiting for Kite login", zaplogger.Fields{"url": l.LoginURL, "wait": l.Wait.String()})

	if err := l.waitForDashboard(ctx, b); err != nil {
		return models.Credential{}, err
	}
	sleepCtx(ctx, l.Settle)

	return ResolveCredential(ctx, b)
}

func (l *BrowserLogin) waitForDashboard(ctx context.Context, b Browser) error {
	deadline := time.Now().Add(l.Wait)
	ticker := time.NewTicker(l.Poll)
	defer ticker.Stop()

	for {
		url, err := b.URL(ctx)
		if err == nil && strings.Contains(url, "dashboard") {
			zaplogger.Info("Kite dashboard reached")
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLoginTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ResolveCredential tries cookies, then localStorage, then the captured
// network traffic
func ResolveCredential(ctx context.Context, b Browser) (models.Credential, error) {
	res, source := fallback.FirstFound(ctx,
		fallback.Strategy[models.Credential]{Name: "cookies", Run: func(ctx context.Context) (fallback.Result[models.Credential], error) {
			return credentialFromCookies(ctx, b)
		}},
		fallback.Strategy[models.Credential]{Name: "storage", Run: func(ctx context.Context) (fallback.Result[models.Credential], error) {
			return credentialFromStorage(ctx, b)
		}},
		fallback.Strategy[models.Credential]{Name: "network", Run: func(ctx context.Context) (fallback.Result[models.Credential], error) {
			return credentialFromTraffic(ctx, b)
		}},
	)
	if !res.Found {
		return models.Credential{}, ErrTokenNotFound
	}
	zaplogger.Info("enctoken extracted", zaplogger.Fields{
		"source":   source,
		"user_id":  res.Value.UserID,
		"enctoken": zaplogger.Mask(res.Value.Token),
	})
	return res.Value, nil
}

func credentialFromCookies(ctx context.Context, b Browser) (fallback.Result[models.Credential], error) {
	cookies, err := b.Cookies(ctx)
	if err != nil {
		return fallback.NotFound[models.Credential](), err
	}
	if cookies["enctoken"] == "" {
		return fallback.NotFound[models.Credential](), nil
	}
	return fallback.Found(models.Credential{
		UserID: orUnknown(cookies["user_id"]),
		Token:  cookies["enctoken"],
	}), nil
}

func credentialFromStorage(ctx context.Context, b Browser) (fallback.Result[models.Credential], error) {
	token, err := b.StorageItem(ctx, "enctoken")
	if err != nil {
		return fallback.NotFound[models.Credential](), err
	}
	if token == "" {
		return fallback.NotFound[models.Credential](), nil
	}
	userID, err := b.StorageItem(ctx, "user_id")
	if err != nil {
		userID = ""
	}
	return fallback.Found(models.Credential{UserID: orUnknown(userID), Token: token}), nil
}

func credentialFromTraffic(ctx context.Context, b Browser) (fallback.Result[models.Credential], error) {
	for _, headers := range b.ResponseHeaders() {
		for name, value := range headers {
			if !strings.EqualFold(name, "set-cookie") {
				continue
			}
			token := enctokenFromSetCookie(value)
			if token == "" {
				continue
			}
			userID, err := b.StorageItem(ctx, "user_id")
			if err != nil {
				userID = ""
			}
			return fallback.Found(models.Credential{UserID: orUnknown(userID), Token: token}), nil
		}
	}
	return fallback.NotFound[models.Credential](), nil
}

// enctokenFromSetCookie pulls the enctoken value out of a Set-Cookie
// header. Several cookies may be folded into one value by newlines.
func enctokenFromSetCookie(header string) string {
	for _, line := range strings.Split(header, "\n") {
		i := strings.Index(line, "enctoken=")
		if i < 0 {
			continue
		}
		value := line[i+len("enctoken="):]
		if j := strings.Index(value, ";"); j >= 0 {
			value = value[:j]
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

func orUnknown(userID string) string {
	if userID == "" {
		return UnknownUserID
	}
	return userID
}

// sleepCtx sleeps for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
