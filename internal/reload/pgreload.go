package reload

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PGTrigger reloads a PostgreSQL server through its own control interface,
// SELECT pg_reload_conf(), the database-native equivalent of SIGHUP. Useful
// when the server runs in another container and signals cannot reach it.
type PGTrigger struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenPG opens a PostgreSQL connection pool for reload calls.
func OpenPG(connInfo string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connInfo)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	// One idle reload connection is plenty for a daily poll.
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewPGTrigger creates a trigger issuing pg_reload_conf over db.
func NewPGTrigger(db *sql.DB, logger *zap.Logger) *PGTrigger {
	return &PGTrigger{
		db:     db,
		logger: logger,
	}
}

// Reload asks the server to re-read its configuration files.
func (t *PGTrigger) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var ok bool
	if err := t.db.QueryRowContext(ctx, "SELECT pg_reload_conf()").Scan(&ok); err != nil {
		return fmt.Errorf("%w: pg_reload_conf: %v", ErrReloadFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: pg_reload_conf returned false", ErrReloadFailed)
	}

	t.logger.Info("PostgreSQL configuration reload triggered")
	return nil
}

// Close releases the reload connection pool.
func (t *PGTrigger) Close() error {
	return t.db.Close()
}
