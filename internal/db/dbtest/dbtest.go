// Package dbtest opens throwaway in-memory SQLite databases with the service
// schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"timesheet-service/internal/model"
)

var counter atomic.Int64

// New returns a database shared only by connections of this test.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:dbtest%d?mode=memory&cache=shared&_foreign_keys=on", counter.Add(1))
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	// a single connection keeps transactions from racing on the shared cache
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(&model.GeofenceZone{}, &model.EmployeeAssignment{}, &model.Timesheet{}); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})

	return database
}
