package repository

import (
	"context"
	"errors"
)

// Cache keys; the file store uses them as file names
const (
	CredentialCacheKey = "token_cache"
	DropdownCacheKey   = "excel_dates_cache"
)

// ErrCacheMiss is returned by Load when nothing is stored under a key
var ErrCacheMiss = errors.New("cache miss")

// CacheStore persists small JSON documents between runs
type CacheStore interface {
	Load(ctx context.Context, key string, v any) error
	Save(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}
