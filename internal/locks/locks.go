// Package locks keeps two runs of the same job from overlapping.
package locks

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"

	"github.com/dmitrijs2005/esimrouter/internal/common"
	"github.com/dmitrijs2005/esimrouter/internal/dbx"
)

// Locker acquires a named run lock. The returned release func must be
// called once the run ends, whether it succeeded or not.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(context.Context) error, err error)
}

// Key maps a job name to the advisory lock key shared by every process.
func Key(name string) int64 {
	return int64(crc32.ChecksumIEEE([]byte("esimrouter:" + name)))
}

// Advisory holds a PostgreSQL session advisory lock on a pinned connection.
type Advisory struct {
	db *sql.DB
}

func NewAdvisory(db *sql.DB) *Advisory {
	return &Advisory{db: db}
}

// Acquire returns common.ErrRunInProgress when another session holds name.
func (a *Advisory) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	conn, err := dbx.Conn(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	key := Key(name)
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", common.ErrRunInProgress, name)
	}

	release := func(ctx context.Context) error {
		defer conn.Close()
		var unlocked bool
		if err := conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&unlocked); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !unlocked {
			return fmt.Errorf("lock %s was not held", name)
		}
		return nil
	}
	return release, nil
}

// Nop never blocks. It is used with stores that have no lock primitive.
type Nop struct{}

func (Nop) Acquire(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
