package main

import (
	"context"
	"fmt"

	"github.com/nsvirk/ocbridge/internal/browser"
	"github.com/nsvirk/ocbridge/internal/config"
	"github.com/nsvirk/ocbridge/internal/repository"
	"github.com/nsvirk/ocbridge/internal/service"
	"github.com/nsvirk/ocbridge/internal/workbook"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// app holds every long lived component built from the configuration
type app struct {
	cfg         *config.Config
	db          *gorm.DB
	redisClient *redis.Client
	layout      workbook.Layout
	opener      workbook.Opener
	terminal    *workbook.ProcessManager
	sessions    *service.SessionService
	dropdowns   *service.DropdownService
	fetcher     *service.FetchService
	bridge      *service.Bridge
	fetchLogs   *repository.FetchLogRepository
}

func newApp(cfg *config.Config, dryRun bool) (*app, error) {
	a := &app{cfg: cfg, layout: workbook.DefaultLayout}
	a.layout.Sheet = cfg.WorkbookSheet
	if err := a.layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sheet layout: %w", err)
	}

	// Postgres is optional; it carries the session audit, fetch logs and the app log
	if cfg.PostgresDsn != "" {
		db, err := repository.ConnectPostgres(cfg)
		if err != nil {
			return nil, err
		}
		if err := zaplogger.InitLogger(db); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.db = db
		a.fetchLogs = repository.NewFetchLogRepository(db)
		zaplogger.Info("Postgres initialized")
	}

	if cfg.RedisHost != "" {
		redisClient, err := repository.ConnectRedis(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.redisClient = redisClient
		zaplogger.Info("Redis initialized")
	}

	cache, err := a.cacheStore()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.opener = a.workbookOpener(dryRun)
	if !dryRun && cfg.WorkbookBackend == "com" {
		a.terminal = workbook.NewProcessManager(cfg.TerminalExeName, cfg.TerminalExePath)
	}

	hour, minute, _ := cfg.Cutoff()
	opts := []service.SessionOption{
		service.WithCutoff(hour, minute, cfg.Location()),
	}
	if cfg.VerifyCachedToken() {
		opts = append(opts, service.WithVerifier(service.NewTokenVerifier()))
	}
	if a.db != nil {
		opts = append(opts, service.WithRecorder(repository.NewSessionRepository(a.db)))
	}
	if n := service.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID); n != nil {
		opts = append(opts, service.WithNotifier(n))
	}
	a.sessions = service.NewSessionService(cache, a.loginFlow(), a.opener, a.layout, opts...)

	a.dropdowns = service.NewDropdownService(a.opener, a.layout, cache, service.WithDropdownLocation(cfg.Location()))

	fc := service.FetchConfig{
		Settle:          cfg.SettleWaitDuration(),
		BreakerFailures: cfg.BreakerFailures(),
		BreakerOpenFor:  cfg.BreakerTimeoutDuration(),
	}
	if a.fetchLogs != nil {
		fc.Recorder = a.fetchLogs
	}
	a.fetcher = service.NewFetchService(a.opener, a.layout, fc)

	var terminal service.Terminal
	if a.terminal != nil {
		terminal = a.terminal
	}
	a.bridge = service.NewBridge(terminal, a.sessions, a.dropdowns, a.fetcher)
	return a, nil
}

func (a *app) cacheStore() (repository.CacheStore, error) {
	switch a.cfg.CacheBackend {
	case "redis":
		if a.redisClient == nil {
			return nil, fmt.Errorf("redis cache backend needs OCB_REDIS_HOST")
		}
		return repository.NewRedisStore(a.redisClient, "ocbridge:", 0), nil
	case "postgres":
		if a.db == nil {
			return nil, fmt.Errorf("postgres cache backend needs OCB_PG_DSN")
		}
		return repository.NewStateStore(a.db), nil
	default:
		return repository.NewFileStore(a.cfg.CacheDir)
	}
}

func (a *app) workbookOpener(dryRun bool) workbook.Opener {
	if dryRun {
		zaplogger.Warn("dry run: using an empty in-memory workbook")
		return &workbook.MemoryOpener{Workbook: workbook.NewMemoryWorkbook("dry-run.xlsm", a.layout.Sheet)}
	}
	if a.cfg.WorkbookBackend == "file" {
		return &workbook.FileOpener{Path: a.cfg.WorkbookPath, Sheet: a.layout.Sheet}
	}
	return &workbook.ComOpener{Path: a.cfg.WorkbookPath, Sheet: a.layout.Sheet, Keys: workbook.NewRobotKeys()}
}

func (a *app) loginFlow() service.LoginFlow {
	if a.cfg.LoginMode == "totp" {
		return service.NewTOTPLogin(a.cfg.KiteUserID, a.cfg.KitePassword, a.cfg.KiteTotpSecret)
	}
	headless := a.cfg.Headless()
	newBrowser := func(ctx context.Context) (service.Browser, error) {
		c, err := browser.NewChrome(context.WithoutCancel(ctx), headless)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return service.NewBrowserLogin(newBrowser, a.cfg.LoginURL, a.cfg.LoginWaitDuration())
}

// Close releases connections and stops a terminal the app started
func (a *app) Close() {
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			zaplogger.Warn("terminal stop failed", zaplogger.Fields{"error": err.Error()})
		}
	}
	if a.redisClient != nil {
		a.redisClient.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	zaplogger.Sync()
}
