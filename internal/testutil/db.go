// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"routine-planner/internal/model"
	"routine-planner/internal/repository"
)

// NewDB opens a migrated SQLite database in a per-test temp dir.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := repository.NewDB(repository.Options{
		Driver: repository.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "planner.db"),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Clock is a settable wall clock for tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// ClockAt builds a clock at noon UTC of the given day.
func ClockAt(day string) *Clock {
	return NewClock(model.MustParseDate(day).Time().Add(12 * time.Hour))
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// AdvanceDays moves the clock forward by n days.
func (c *Clock) AdvanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}

func StrPtr(s string) *string { return &s }
