package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
)

// SavepointTx is a unitofwork.TxController backed by a real PostgreSQL
// transaction, using `SAVEPOINT`/`ROLLBACK TO SAVEPOINT`/`RELEASE
// SAVEPOINT` for the unit of work's nested-savepoint stack discipline
// (spec.md §4.6).
type SavepointTx struct {
	conn *Connection
	tx   *sqlx.Tx
}

// NewSavepointTx constructs a SavepointTx over conn. Begin must be called
// before any other method.
func NewSavepointTx(conn *Connection) *SavepointTx {
	return &SavepointTx{conn: conn}
}

// Begin starts the underlying SQL transaction.
func (s *SavepointTx) Begin(ctx context.Context) error {
	tx, err := s.conn.DB.BeginTxx(ctx, nil)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "begin transaction", err)
	}
	s.tx = tx
	return nil
}

// Tx exposes the underlying *sqlx.Tx so repository calls made within the
// unit of work's closure can run against the same transaction.
func (s *SavepointTx) Tx() *sqlx.Tx { return s.tx }

// Commit commits the underlying SQL transaction.
func (s *SavepointTx) Commit(ctx context.Context) error {
	if err := s.tx.Commit(); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "commit transaction", err)
	}
	return nil
}

// Rollback rolls back the underlying SQL transaction.
func (s *SavepointTx) Rollback(ctx context.Context) error {
	if err := s.tx.Rollback(); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "rollback transaction", err)
	}
	return nil
}

// Savepoint issues SAVEPOINT name.
func (s *SavepointTx) Savepoint(ctx context.Context, name string) error {
	if _, err := s.tx.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", quoteIdent(name))); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "create savepoint", err)
	}
	return nil
}

// RollbackToSavepoint issues ROLLBACK TO SAVEPOINT name.
func (s *SavepointTx) RollbackToSavepoint(ctx context.Context, name string) error {
	if _, err := s.tx.ExecContext(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", quoteIdent(name))); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "rollback to savepoint", err)
	}
	return nil
}

// ReleaseSavepoint issues RELEASE SAVEPOINT name.
func (s *SavepointTx) ReleaseSavepoint(ctx context.Context, name string) error {
	if _, err := s.tx.ExecContext(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", quoteIdent(name))); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "release savepoint", err)
	}
	return nil
}

// quoteIdent defends SAVEPOINT names (caller-supplied, per spec.md §4.6's
// create_savepoint(name?)) against identifier injection, since savepoint
// names cannot be bound as query parameters in PostgreSQL's grammar.
func quoteIdent(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '"')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '"' {
			out = append(out, '"', '"')
			continue
		}
		out = append(out, c)
	}
	out = append(out, '"')
	return string(out)
}
