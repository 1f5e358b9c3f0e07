package configdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE queue(
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			max_size INT NOT NULL,
			max_batch_size INT NOT NULL,
			balancer_threshold INT NOT NULL DEFAULT 0,
			balancer_step INT NOT NULL DEFAULT 0,
			balancer_step_log INT NOT NULL DEFAULT 0,
			balancer_dilution_backward_purge INT NOT NULL DEFAULT 0
		);
		CREATE UNIQUE INDEX idx_queue_name ON queue (name);

		CREATE TABLE camera(
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT NOT NULL,
			interval_ms INT NOT NULL,
			queue_id INT NOT NULL,
			enabled INT NOT NULL DEFAULT 1
		);
		CREATE UNIQUE INDEX idx_camera_name ON camera (name);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		ALTER TABLE queue ADD COLUMN dilution_keep TEXT NOT NULL DEFAULT '';

		CREATE TABLE aggregator(
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			mode TEXT NOT NULL,
			state_threshold INT NOT NULL,
			time_gap_ms INT NOT NULL DEFAULT 0
		);
		CREATE UNIQUE INDEX idx_aggregator_name ON aggregator (name);
	`))

	// Balancer options become nullable, so that an explicit 0 is distinct from the default
	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE queue_new(
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			max_size INT NOT NULL,
			max_batch_size INT NOT NULL,
			balancer_threshold INT,
			balancer_step INT,
			balancer_step_log INT,
			balancer_dilution_backward_purge INT,
			dilution_keep TEXT NOT NULL DEFAULT ''
		);
		INSERT INTO queue_new SELECT id, name, max_size, max_batch_size,
			NULLIF(balancer_threshold, 0), NULLIF(balancer_step, 0), NULLIF(balancer_step_log, 0), NULLIF(balancer_dilution_backward_purge, 0),
			dilution_keep FROM queue;
		DROP TABLE queue;
		ALTER TABLE queue_new RENAME TO queue;
		CREATE UNIQUE INDEX idx_queue_name ON queue (name);
	`))

	return migs
}
