// Package app wires configuration, storage and services for the server and
// the job commands.
package app

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"timesheet-service/internal/config"
	"timesheet-service/internal/db"
	"timesheet-service/internal/events"
	"timesheet-service/internal/repository"
	"timesheet-service/internal/service"
)

type App struct {
	Config *config.Config
	Log    zerolog.Logger
	DB     *gorm.DB

	Zones      *service.ZoneStore
	Geofence   *service.GeofenceService
	Reconciler *service.ReconcileService
	Cleaner    *service.CleanupService
	Generator  *service.GeneratorService

	nats *nats.Conn
}

// New opens the database and event transport and builds every service.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	database, err := db.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &App{Config: cfg, Log: log, DB: database}

	var publisher events.Publisher
	if cfg.NATS.URL != "" {
		conn, err := events.Connect(cfg.NATS.URL, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.nats = conn
		publisher = events.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix, log)
	} else {
		log.Warn().Msg("NATS_URL not set, violation events go to the log only")
		publisher = events.NewLogPublisher(log)
	}

	a.Build(publisher)
	return a, nil
}

// Build constructs the services over a.DB with the given publisher.
func (a *App) Build(publisher events.Publisher) {
	cfg := a.Config

	zoneRepo := repository.NewGeofenceZoneRepository(a.DB)
	timesheetRepo := repository.NewTimesheetRepository(a.DB)
	assignmentRepo := repository.NewAssignmentRepository(a.DB)

	a.Zones = service.NewZoneStore(zoneRepo, cfg.Geofence.ZoneCacheTTL, a.Log)
	a.Geofence = service.NewGeofenceService(a.Zones, timesheetRepo, a.Log)

	a.Reconciler = service.NewReconcileService(a.DB, timesheetRepo, assignmentRepo, a.Zones, publisher, cfg.Timezone, a.Log)
	a.Reconciler.SetTimesheetInvalidator(publisher.PublishTimesheetsChanged)

	a.Cleaner = service.NewCleanupService(a.DB, timesheetRepo, zoneRepo, a.Zones, a.Log)
	a.Cleaner.SetTimesheetInvalidator(publisher.PublishTimesheetsChanged)

	a.Generator = service.NewGeneratorService(a.DB, timesheetRepo, assignmentRepo, cfg.Generator.WorkdayStartTime, cfg.Timezone, a.Log)
	a.Generator.SetTimesheetInvalidator(publisher.PublishTimesheetsChanged)
}

// ReconcileDefaults are the configured reconcile parameters.
func (a *App) ReconcileDefaults() service.ReconcileOptions {
	return service.ReconcileOptions{
		MaxAge:            a.Config.Reconcile.MaxAge,
		BatchSize:         a.Config.Reconcile.BatchSize,
		OvertimeThreshold: a.Config.Reconcile.OvertimeDailyThreshold,
	}
}

// CleanupDefaults are the configured retention parameters.
func (a *App) CleanupDefaults() service.CleanupOptions {
	return service.CleanupOptions{
		RetentionDays:    a.Config.Retention.Days,
		Target:           service.CleanupAll,
		OrphanZoneMinAge: a.Config.Retention.OrphanZoneMinAge,
	}
}

func (a *App) Close() {
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.Log.Warn().Err(err).Msg("failed to drain nats connection")
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
