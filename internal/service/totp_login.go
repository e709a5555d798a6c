package service

import (
	"context"
	"fmt"

	kitesession "github.com/nsvirk/gokitesession"
	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
)

// TOTPLogin logs in to Kite without a browser using a stored password and
// TOTP secret
type TOTPLogin struct {
	userID     string
	password   string
	totpSecret string

	generate func(userID, password, totp string) (models.Credential, error)
	totp     func(secret string) (string, error)
}

// NewTOTPLogin creates a login flow backed by gokitesession
func NewTOTPLogin(userID, password, totpSecret string) *TOTPLogin {
	client := kitesession.New()
	return &TOTPLogin{
		userID:     userID,
		password:   password,
		totpSecret: totpSecret,
		generate: func(userID, password, totp string) (models.Credential, error) {
			session, err := client.GenerateSession(userID, password, totp)
			if err != nil {
				return models.Credential{}, err
			}
			return models.Credential{UserID: session.UserID, Token: session.Enctoken}, nil
		},
		totp: kitesession.GenerateTOTPValue,
	}
}

func (l *TOTPLogin) Source() string { return models.LoginSourceTOTP }

func (l *TOTPLogin) Login(ctx context.Context) (models.Credential, error) {
	if err := ctx.Err(); err != nil {
		return models.Credential{}, err
	}
	totpValue, err := l.totp(l.totpSecret)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: generate totp: %v", ErrLoginFailed, err)
	}
	cred, err := l.generate(l.userID, l.password, totpValue)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if !cred.Valid() {
		return models.Credential{}, ErrTokenNotFound
	}
	if cred.UserID == "" {
		cred.UserID = l.userID
	}
	zaplogger.Info("totp login succeeded", zaplogger.Fields{
		"user_id":  cred.UserID,
		"enctoken": zaplogger.Mask(cred.Token),
	})
	return cred, nil
}

// TokenVerifier asks Kite whether an enctoken is still accepted
type TokenVerifier interface {
	CheckEnctokenValid(enctoken string) (bool, error)
}

// NewTokenVerifier returns the gokitesession client as a verifier
func NewTokenVerifier() TokenVerifier {
	return kitesession.New()
}
