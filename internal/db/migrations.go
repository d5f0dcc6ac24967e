package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	`CREATE TABLE IF NOT EXISTS geofence_zones (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name VARCHAR(255) NOT NULL,
		description TEXT,
		zone_type VARCHAR(32) NOT NULL DEFAULT 'project_site',
		shape VARCHAR(16) NOT NULL,
		center_lat DOUBLE PRECISION,
		center_lon DOUBLE PRECISION,
		radius_meters DOUBLE PRECISION,
		polygon JSONB,
		buffer_meters DOUBLE PRECISION NOT NULL DEFAULT 0,
		project_id UUID,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ,
		CONSTRAINT chk_geofence_zones_shape CHECK (
			(shape = 'circle' AND radius_meters > 0 AND center_lat IS NOT NULL AND center_lon IS NOT NULL)
			OR (shape = 'polygon' AND polygon IS NOT NULL)
		)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_geofence_zones_project_id ON geofence_zones (project_id);`,
	`CREATE INDEX IF NOT EXISTS idx_geofence_zones_is_active ON geofence_zones (is_active);`,
	`CREATE INDEX IF NOT EXISTS idx_geofence_zones_deleted_at ON geofence_zones (deleted_at);`,
	`CREATE TABLE IF NOT EXISTS employee_assignments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		employee_id UUID NOT NULL,
		type VARCHAR(20) NOT NULL,
		name VARCHAR(255),
		project_id UUID,
		rental_id UUID,
		start_date DATE NOT NULL,
		end_date DATE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_employee_assignments_employee_id ON employee_assignments (employee_id);`,
	`CREATE INDEX IF NOT EXISTS idx_employee_assignments_project_id ON employee_assignments (project_id);`,
	`CREATE INDEX IF NOT EXISTS idx_employee_assignments_is_active ON employee_assignments (is_active);`,
	`CREATE TABLE IF NOT EXISTS timesheets (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		employee_id UUID NOT NULL,
		assignment_id UUID,
		project_id UUID,
		rental_id UUID,
		date DATE NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'draft',
		start_time VARCHAR(5),
		end_time VARCHAR(5),
		hours_worked DOUBLE PRECISION NOT NULL DEFAULT 0,
		overtime_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
		description TEXT,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		is_offline_entry BOOLEAN NOT NULL DEFAULT FALSE,
		location_history JSONB,
		gps_logs JSONB,
		geofence_status VARCHAR(20) NOT NULL DEFAULT 'unknown',
		geofence_violations JSONB,
		geofence_zone_id UUID,
		distance_from_site DOUBLE PRECISION,
		sync_status VARCHAR(32) NOT NULL DEFAULT 'pending',
		sync_attempts INTEGER NOT NULL DEFAULT 0,
		synced_at TIMESTAMPTZ,
		sync_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM information_schema.columns
			WHERE table_name = 'timesheets' AND column_name = 'sync_error') THEN
			ALTER TABLE timesheets ADD COLUMN sync_error TEXT;
		END IF;
		IF NOT EXISTS (SELECT 1 FROM information_schema.columns
			WHERE table_name = 'timesheets' AND column_name = 'geofence_zone_id') THEN
			ALTER TABLE timesheets ADD COLUMN geofence_zone_id UUID;
		END IF;
	END
	$$;`,
	`CREATE INDEX IF NOT EXISTS idx_timesheets_employee_date ON timesheets (employee_id, date);`,
	`CREATE INDEX IF NOT EXISTS idx_timesheets_project_id ON timesheets (project_id);`,
	`CREATE INDEX IF NOT EXISTS idx_timesheets_rental_id ON timesheets (rental_id);`,
	`CREATE INDEX IF NOT EXISTS idx_timesheets_geofence_zone_id ON timesheets (geofence_zone_id);`,
	`CREATE INDEX IF NOT EXISTS idx_timesheets_offline_sync ON timesheets (is_offline_entry, sync_status, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_timesheets_created_at ON timesheets (created_at);`,
	// at most one synced row per (employee, date, project)
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_timesheets_synced_tuple
		ON timesheets (employee_id, date, COALESCE(project_id, '00000000-0000-0000-0000-000000000000'::uuid))
		WHERE sync_status IN ('synced', 'synced_with_violations');`,
	`CREATE OR REPLACE FUNCTION set_updated_at()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_timesheets_updated_at') THEN
			CREATE TRIGGER trg_timesheets_updated_at
				BEFORE UPDATE ON timesheets
				FOR EACH ROW
				EXECUTE PROCEDURE set_updated_at();
		END IF;
	END
	$$;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_geofence_zones_updated_at') THEN
			CREATE TRIGGER trg_geofence_zones_updated_at
				BEFORE UPDATE ON geofence_zones
				FOR EACH ROW
				EXECUTE PROCEDURE set_updated_at();
		END IF;
	END
	$$;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
