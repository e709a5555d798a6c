// Package service contains the service layer for the option chain bridge
package service

import (
	"context"
	"time"

	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
	"github.com/robfig/cron/v3"
)

// CronService is the service for the cron jobs
type CronService struct {
	c        *cron.Cron
	bridge   *Bridge
	sessions *SessionService
	timeout  time.Duration
}

// NewCronService creates a new CronService running in loc
func NewCronService(bridge *Bridge, sessions *SessionService, loc *time.Location) *CronService {
	if loc == nil {
		loc = time.Local
	}
	return &CronService{
		c:        cron.New(cron.WithLocation(loc)),
		bridge:   bridge,
		sessions: sessions,
		timeout:  5 * time.Minute,
	}
}

// Start starts the cron service
func (cs *CronService) Start() {
	// Log the initialization to logger
	zaplogger.Info("Initializing CronService")

	// ------------------------------------------------------------
	// Add your SCHEDULED jobs here
	// ------------------------------------------------------------
	cs.addScheduledJob("Session REFRESH Job", cs.SessionRefreshJob, "45 8 * * 1-5")   // Once at 08:45am, Mon-Fri
	cs.addScheduledJob("Dropdown REFRESH Job", cs.DropdownRefreshJob, "50 8 * * 1-5") // Once at 08:50am, Mon-Fri
	cs.addScheduledJob("Session EXPIRE Job", cs.SessionExpireJob, "0 17 * * 1-5")     // Once at 05:00pm, Mon-Fri

	// ------------------------------------------------------------
	// Add your STARTUP jobs here
	// ------------------------------------------------------------
	cs.addStartupJob("Bridge INITIALIZE Job", cs.BridgeInitializeJob, 1*time.Second)
	// ------------------------------------------------------------

	cs.c.Start()
}

// Stop stops the scheduler and waits for running jobs
func (cs *CronService) Stop() {
	<-cs.c.Stop().Done()
}

// addStartupJob adds a startup job to the cron service
func (cs *CronService) addStartupJob(name string, job func(), delay time.Duration) {
	go func() {
		time.Sleep(delay)
		zaplogger.Info("STARTED STARTUP job", zaplogger.Fields{
			"job": name,
		})
		job()
		zaplogger.Info("COMPLETED STARTUP job", zaplogger.Fields{
			"job": name,
		})
	}()
	zaplogger.Info("QUEUED STARTUP job", zaplogger.Fields{
		"job": name,
	})
}

func (cs *CronService) addScheduledJob(name string, job func(), schedule string) {
	_, err := cs.c.AddFunc(schedule, func() {
		zaplogger.Info("STARTED SCHEDULED JOB", zaplogger.Fields{
			"job": name,
		})
		job()
		zaplogger.Info("COMPLETED SCHEDULED JOB", zaplogger.Fields{
			"job": name,
		})
	})
	if err != nil {
		zaplogger.Error("FAILED TO QUEUE SCHEDULED JOB", zaplogger.Fields{
			"job":   name,
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info("QUEUED SCHEDULED job", zaplogger.Fields{
		"job": name,
	})
}

// BridgeInitializeJob logs in if needed and loads the dropdowns
func (cs *CronService) BridgeInitializeJob() {
	jobName := "Bridge INITIALIZE Job "
	ctx, cancel := context.WithTimeout(context.Background(), cs.timeout)
	defer cancel()

	res, err := cs.bridge.Initialize(ctx)
	if err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info(jobName, zaplogger.Fields{
		"symbols":             len(res.Options.Symbols),
		"already_initialized": res.AlreadyInitialized,
	})
}

// SessionRefreshJob gets the day's credential ahead of market open
func (cs *CronService) SessionRefreshJob() {
	jobName := "Session REFRESH Job "
	ctx, cancel := context.WithTimeout(context.Background(), cs.timeout)
	defer cancel()

	cred, err := cs.sessions.EnsureCredential(ctx)
	if err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info(jobName, zaplogger.Fields{
		"user_id": cred.UserID,
	})
}

// DropdownRefreshJob picks up the new day's expiries
func (cs *CronService) DropdownRefreshJob() {
	jobName := "Dropdown REFRESH Job "
	ctx, cancel := context.WithTimeout(context.Background(), cs.timeout)
	defer cancel()

	var err error
	if cs.bridge.Ready() {
		_, err = cs.bridge.RefreshDropdowns(ctx)
	} else {
		_, err = cs.bridge.Initialize(ctx)
	}
	if err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info(jobName)
}

// SessionExpireJob retires the day's session at the cutoff
func (cs *CronService) SessionExpireJob() {
	jobName := "Session EXPIRE Job "
	cs.bridge.Expire()
	if err := cs.sessions.Expire(context.Background()); err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info(jobName)
}
