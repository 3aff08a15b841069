package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema holds the DDL for the tables the engine persists.  Queue entries,
// holds and resale offers live in process memory and are not listed here.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id                     BIGINT AUTO_INCREMENT PRIMARY KEY,
		name                   VARCHAR(200) NOT NULL,
		venue_name             VARCHAR(200) NOT NULL DEFAULT '',
		city                   VARCHAR(100) NOT NULL DEFAULT '',
		ticket_price           DECIMAL(12,2) NOT NULL,
		total_seats            INT NOT NULL,
		max_tickets_per_person INT NOT NULL,
		status                 VARCHAR(16) NOT NULL,
		created_at             DATETIME NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_ledgers (
		event_id    BIGINT PRIMARY KEY,
		total_seats INT NOT NULL,
		sold_count  INT NOT NULL DEFAULT 0,
		held_count  INT NOT NULL DEFAULT 0,
		CONSTRAINT chk_seat_ledgers_usage CHECK (sold_count >= 0 AND held_count >= 0 AND sold_count + held_count <= total_seats)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seat_grants (
		id       CHAR(36) PRIMARY KEY,
		event_id BIGINT NOT NULL,
		seats    INT NOT NULL,
		state    VARCHAR(16) NOT NULL,
		KEY idx_seat_grants_state (state)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id         BIGINT AUTO_INCREMENT PRIMARY KEY,
		serial     CHAR(36) NOT NULL UNIQUE,
		event_id   BIGINT NOT NULL,
		order_id   CHAR(36) NOT NULL,
		owner_id   VARCHAR(128) NOT NULL,
		price      DECIMAL(12,2) NOT NULL,
		status     VARCHAR(16) NOT NULL,
		created_at DATETIME NOT NULL,
		KEY idx_tickets_order (order_id),
		KEY idx_tickets_owner (owner_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.  Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
