package postgres

import (
	"database/sql"
	"time"
)

// nullTimePtr converts a nullable SQL time column into the *time.Time
// pointer shape the domain package uses for optional timestamps.
func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	tm := t.Time
	return &tm
}
