package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/frozenspider/chat-history-manager-go/internal/config"
)

func TestNew(t *testing.T) {
	s := New(func(ctx context.Context, name string) error { return nil })
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.cron == nil {
		t.Error("cron is nil")
	}
	if s.jobs == nil {
		t.Error("jobs map is nil")
	}
}

func TestAddSchedule(t *testing.T) {
	s := New(func(ctx context.Context, name string) error { return nil })

	if err := s.AddSchedule("main", "0 2 * * *"); err != nil {
		t.Errorf("AddSchedule() with valid cron = %v, want nil", err)
	}

	s.mu.RLock()
	_, exists := s.jobs["main"]
	s.mu.RUnlock()
	if !exists {
		t.Error("job was not added to jobs map")
	}
}

func TestAddScheduleInvalidCron(t *testing.T) {
	s := New(func(ctx context.Context, name string) error { return nil })
	if err := s.AddSchedule("main", "invalid cron"); err == nil {
		t.Error("AddSchedule() with invalid cron = nil, want error")
	}
}

func TestAddScheduleReplacesExisting(t *testing.T) {
	s := New(func(ctx context.Context, name string) error { return nil })
	if err := s.AddSchedule("main", "0 2 * * *"); err != nil {
		t.Fatalf("first AddSchedule: %v", err)
	}
	if err := s.AddSchedule("main", "0 3 * * *"); err != nil {
		t.Fatalf("second AddSchedule: %v", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.jobs) != 1 {
		t.Errorf("got %d jobs, want 1 (replaced, not duplicated)", len(s.jobs))
	}
	if s.schedules["main"] != "0 3 * * *" {
		t.Errorf("schedule = %q, want the replacement", s.schedules["main"])
	}
}

func TestRemoveSchedule(t *testing.T) {
	s := New(func(ctx context.Context, name string) error { return nil })
	if err := s.AddSchedule("main", "0 2 * * *"); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	s.RemoveSchedule("main")
	if s.IsScheduled("main") {
		t.Error("schedule still present after RemoveSchedule")
	}
}

func TestTriggerBackupRunsImmediately(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	s := New(func(ctx context.Context, name string) error {
		atomic.AddInt32(&calls, 1)
		close(done)
		return nil
	})
	if err := s.AddSchedule("main", "0 0 1 1 *"); err != nil { // once a year, never fires on its own
		t.Fatalf("AddSchedule: %v", err)
	}
	s.Start()
	defer s.Stop()

	if err := s.TriggerBackup("main"); err != nil {
		t.Fatalf("TriggerBackup: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("backup callback did not run")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestTriggerBackupNotScheduled(t *testing.T) {
	s := New(func(ctx context.Context, name string) error { return nil })
	if err := s.TriggerBackup("missing"); err == nil {
		t.Error("TriggerBackup(unscheduled) = nil, want error")
	}
}

func TestTriggerBackupAlreadyRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(func(ctx context.Context, name string) error {
		close(started)
		<-release
		return nil
	})
	if err := s.AddSchedule("main", "0 0 1 1 *"); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	s.Start()
	defer func() {
		close(release)
		s.Stop()
	}()

	if err := s.TriggerBackup("main"); err != nil {
		t.Fatalf("first TriggerBackup: %v", err)
	}
	<-started
	if err := s.TriggerBackup("main"); err == nil {
		t.Error("TriggerBackup while running = nil, want error")
	}
}

func TestStatusReportsLastError(t *testing.T) {
	wantErr := errors.New("backup failed")
	done := make(chan struct{})
	s := New(func(ctx context.Context, name string) error {
		defer close(done)
		return wantErr
	})
	if err := s.AddSchedule("main", "0 0 1 1 *"); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	s.Start()
	defer s.Stop()

	if err := s.TriggerBackup("main"); err != nil {
		t.Fatalf("TriggerBackup: %v", err)
	}
	<-done
	time.Sleep(10 * time.Millisecond) // let runBackup finish recording status

	statuses := s.Status()
	if len(statuses) != 1 {
		t.Fatalf("got %d statuses, want 1", len(statuses))
	}
	if statuses[0].LastError != wantErr.Error() {
		t.Errorf("LastError = %q, want %q", statuses[0].LastError, wantErr.Error())
	}
}

func TestAddSchedulesFromConfig(t *testing.T) {
	s := New(func(ctx context.Context, name string) error { return nil })
	cfg := &config.Config{
		Backups: []config.BackupSchedule{
			{Name: "a", Schedule: "0 2 * * *", Enabled: true},
			{Name: "b", Schedule: "invalid", Enabled: true},
			{Name: "c", Schedule: "0 3 * * *", Enabled: false},
		},
	}
	scheduled, errs := s.AddSchedulesFromConfig(cfg)
	if scheduled != 1 {
		t.Errorf("scheduled = %d, want 1 (only 'a' is enabled with a valid expression)", scheduled)
	}
	if len(errs) != 1 {
		t.Errorf("got %d errors, want 1 (for 'b')", len(errs))
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("0 2 * * *"); err != nil {
		t.Errorf("ValidateCronExpr(valid) = %v, want nil", err)
	}
	if err := ValidateCronExpr("not a cron"); err == nil {
		t.Error("ValidateCronExpr(invalid) = nil, want error")
	}
}

func TestIsRunningLifecycle(t *testing.T) {
	s := New(func(ctx context.Context, name string) error { return nil })
	if s.IsRunning() {
		t.Error("new scheduler reports running")
	}
	s.Start()
	if !s.IsRunning() {
		t.Error("started scheduler reports not running")
	}
	<-s.Stop().Done()
	if s.IsRunning() {
		t.Error("stopped scheduler reports running")
	}
}
