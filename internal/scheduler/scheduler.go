// Package scheduler provides cron-driven periodic backups of a chat-history
// store, adapted from the reference codebase's own account-sync scheduler:
// same robfig/cron wiring, schedule validation and start/stop lifecycle,
// repurposed from per-account email sync to per-store backup jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/frozenspider/chat-history-manager-go/internal/config"
)

// BackupFunc is the callback invoked when a scheduled backup should run. It
// receives the schedule's name and should call the target Store's Backup().
type BackupFunc func(ctx context.Context, name string) error

// ScheduleStatus represents the status of one scheduled backup.
type ScheduleStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler manages cron-driven backup scheduling for named stores.
type Scheduler struct {
	cron       *cron.Cron
	backupFunc BackupFunc
	logger     *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID // name -> cron entry ID
	schedules map[string]string       // name -> cron expression
	running   map[string]bool         // name -> currently backing up
	lastRun   map[string]time.Time    // name -> last successful run
	lastErr   map[string]error        // name -> last error

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running backup goroutines
	started bool               // true after Start(), false after Stop()
	stopped bool               // true after Stop()
}

// New creates a new Scheduler with the given backup callback.
func New(backupFunc BackupFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		backupFunc: backupFunc,
		logger:     slog.Default(),
		jobs:       make(map[string]cron.EntryID),
		schedules:  make(map[string]string),
		running:    make(map[string]bool),
		lastRun:    make(map[string]time.Time),
		lastErr:    make(map[string]error),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddSchedule schedules a backup under name using the given cron expression.
// Returns an error if the cron expression is invalid.
func (s *Scheduler) AddSchedule(name, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		delete(s.schedules, name)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		if s.stopped || s.running[name] {
			s.mu.Unlock()
			return
		}
		s.running[name] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runBackup(name)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[name] = entryID
	s.schedules[name] = cronExpr
	s.logger.Info("scheduled backup",
		"name", name,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddSchedulesFromConfig adds every enabled schedule from the config.
// Returns the number scheduled and any errors encountered.
func (s *Scheduler) AddSchedulesFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	scheduled := 0

	for _, b := range cfg.ScheduledBackups() {
		if err := s.AddSchedule(b.Name, b.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
		} else {
			scheduled++
		}
	}

	return scheduled, errs
}

// RemoveSchedule removes the schedule with the given name.
func (s *Scheduler) RemoveSchedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		delete(s.schedules, name)
		s.logger.Info("removed schedule", "name", name)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop gracefully stops the scheduler, cancels running backup jobs, and
// returns a context that is done once every in-flight job has finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// runBackup executes the backup for name. The caller must have already
// called wg.Add(1) and set running[name] = true.
func (s *Scheduler) runBackup(name string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled backup", "name", name)
	start := time.Now()

	err := s.backupFunc(s.ctx, name)

	s.mu.Lock()
	if err != nil {
		s.lastErr[name] = err
		s.logger.Error("scheduled backup failed",
			"name", name,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[name] = time.Now()
		s.lastErr[name] = nil
		s.logger.Info("scheduled backup completed",
			"name", name,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// IsScheduled returns true if name has been added to the scheduler.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[name]
	return exists
}

// TriggerBackup manually triggers a backup for name outside of its schedule.
func (s *Scheduler) TriggerBackup(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if _, exists := s.jobs[name]; !exists {
		return fmt.Errorf("%s is not scheduled", name)
	}
	if s.running[name] {
		return fmt.Errorf("backup already running for %s", name)
	}

	s.running[name] = true
	s.wg.Add(1)
	go s.runBackup(name)
	return nil
}

// Status returns the current status of every scheduled backup.
func (s *Scheduler) Status() []ScheduleStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var statuses []ScheduleStatus
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		status := ScheduleStatus{
			Name:     name,
			Running:  s.running[name],
			LastRun:  s.lastRun[name],
			NextRun:  entry.Next,
			Schedule: s.schedules[name],
		}
		if err := s.lastErr[name]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
