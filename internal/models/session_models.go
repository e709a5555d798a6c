// Package models contains the models for the option chain bridge
package models

import (
	"time"
)

const SessionsTableName = "sessions"

// Login sources recorded on a SessionModel
const (
	LoginSourceBrowser = "browser"
	LoginSourceTOTP    = "totp"
)

// Credential is the pair written into the workbook before every refresh
type Credential struct {
	UserID string `json:"user_id"`
	Token  string `json:"enctoken"`
}

// Valid reports whether the credential carries a token
func (c Credential) Valid() bool {
	return c.Token != ""
}

// CachedCredential is the record persisted between runs
type CachedCredential struct {
	UserID    string    `json:"user_id"`
	Enctoken  string    `json:"enctoken"`
	Timestamp time.Time `json:"timestamp"`
}

// Credential returns the credential held by the record
func (c CachedCredential) Credential() Credential {
	return Credential{UserID: c.UserID, Token: c.Enctoken}
}

// SessionModel is the audit row written after every successful login
type SessionModel struct {
	UserId    string    `gorm:"primaryKey" json:"user_id"`
	Enctoken  string    `gorm:"index" json:"-"`
	LoginTime time.Time `json:"login_time"`
	Source    string    `json:"source"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (SessionModel) TableName() string {
	return SessionsTableName
}
