// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/tugofwar/logger"
	"github.com/wfunc/tugofwar/models"
)

// GormPostgreSQL is the GORM backed match archive.
type GormPostgreSQL struct {
	db *gorm.DB
}

// zapWriter routes GORM's logger through zap at debug level.
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...any) {
	logger.Log.Debugf(format, args...)
}

func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	gormLogger := gormlogger.New(zapWriter{}, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}
	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormMatch{},
		&models.GormMatchPlayer{},
	)
}

// SaveMatch inserts the match and its players in one transaction and sets
// record.ID.
func (p *GormPostgreSQL) SaveMatch(ctx context.Context, record *models.MatchRecord) error {
	match := models.ToGormMatch(record)
	match.ID = 0
	if err := p.db.WithContext(ctx).Create(match).Error; err != nil {
		return err
	}
	record.ID = match.ID
	return nil
}

func (p *GormPostgreSQL) LoadMatch(ctx context.Context, id int64) (*models.MatchRecord, error) {
	var match models.GormMatch
	err := p.db.WithContext(ctx).Preload("Players", byRank).First(&match, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	record := match.Record()
	return &record, nil
}

// RecentMatches returns the newest matches first.
func (p *GormPostgreSQL) RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	var matches []models.GormMatch
	err := p.db.WithContext(ctx).
		Preload("Players", byRank).
		Order("ended_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&matches).Error
	if err != nil {
		return nil, err
	}

	records := make([]models.MatchRecord, 0, len(matches))
	for i := range matches {
		records = append(records, matches[i].Record())
	}
	return records, nil
}

func (p *GormPostgreSQL) PlayerStats(ctx context.Context, username string) (*models.PlayerStats, error) {
	var stats models.PlayerStats
	result := p.db.WithContext(ctx).Raw(playerStatsQuery("?"), username).Scan(&stats)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return &stats, nil
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func byRank(db *gorm.DB) *gorm.DB {
	return db.Order("rank")
}
