// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/tugofwar/config"
	"github.com/wfunc/tugofwar/models"
)

// MatchStore archives finished matches.
type MatchStore interface {
	SaveMatch(ctx context.Context, record *models.MatchRecord) error
	LoadMatch(ctx context.Context, id int64) (*models.MatchRecord, error)
	RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error)
	PlayerStats(ctx context.Context, username string) (*models.PlayerStats, error)
	Close() error
}

var (
	ErrRecordNotFound = errors.New("record not found")
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// Open connects the store selected by cfg.Driver.
func Open(cfg config.DatabaseConfig) (MatchStore, error) {
	switch cfg.Driver {
	case "gorm", "":
		return NewGormPostgreSQL(cfg.Postgres.DSN())
	case "pq":
		return NewPostgreSQL(cfg.Postgres.DSN())
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultRecentLimit
	case limit > maxRecentLimit:
		return maxRecentLimit
	}
	return limit
}
