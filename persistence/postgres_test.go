package persistence

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wfunc/tugofwar/config"
	"github.com/wfunc/tugofwar/models"
)

var (
	containerOnce sync.Once
	container     *postgres.PostgresContainer
	connString    string
	containerErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		_ = container.Terminate(context.Background())
	}
	os.Exit(code)
}

// startPostgres boots one container for the whole package on first use.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration tests skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	containerOnce.Do(func() {
		ctx := context.Background()
		container, containerErr = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("tugofwar"),
			postgres.WithUsername("tug"),
			postgres.WithPassword("tug"),
			testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
		)
		if containerErr != nil {
			return
		}
		connString, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, containerErr)
	return connString
}

// openStores returns both implementations over the same schema, emptied.
func openStores(t *testing.T) map[string]MatchStore {
	t.Helper()
	dsn := startPostgres(t)

	gormStore, err := NewGormPostgreSQL(dsn)
	require.NoError(t, err)
	pqStore, err := NewPostgreSQL(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = gormStore.Close()
		_ = pqStore.Close()
	})

	return map[string]MatchStore{"gorm": gormStore, "pq": pqStore}
}

func truncate(t *testing.T, dsn string) {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`TRUNCATE match_players, matches RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func sampleMatch(room string, ended time.Time, winner string) *models.MatchRecord {
	return &models.MatchRecord{
		RoomID:     room,
		Winner:     winner,
		WinsA:      3,
		WinsB:      1,
		Rounds:     4,
		TargetWins: 3,
		EndedAt:    ended.UTC().Truncate(time.Microsecond),
		Players: []models.MatchPlayer{
			{PlayerID: "c1", Username: "alice", Team: "A", Score: 420, Rank: 1},
			{PlayerID: "c2", Username: "bob", Team: "B", Score: 300, Rank: 2},
		},
	}
}

func TestMatchStores(t *testing.T) {
	stores := openStores(t)
	ctx := context.Background()

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			truncate(t, connString)

			t.Run("SaveAndLoad", func(t *testing.T) {
				record := sampleMatch("1234", time.Now(), "A")
				require.NoError(t, store.SaveMatch(ctx, record))
				assert.NotZero(t, record.ID)

				loaded, err := store.LoadMatch(ctx, record.ID)
				require.NoError(t, err)
				assert.Equal(t, record.RoomID, loaded.RoomID)
				assert.Equal(t, record.Winner, loaded.Winner)
				assert.True(t, record.EndedAt.Equal(loaded.EndedAt))
				require.Len(t, loaded.Players, 2)
				assert.Equal(t, "alice", loaded.Players[0].Username)
				assert.Equal(t, 2, loaded.Players[1].Rank)
			})

			t.Run("LoadMissing", func(t *testing.T) {
				_, err := store.LoadMatch(ctx, 999999)
				assert.ErrorIs(t, err, ErrRecordNotFound)
			})

			t.Run("RecentMatchesNewestFirst", func(t *testing.T) {
				base := time.Now().Add(-time.Hour)
				for i, room := range []string{"1001", "1002", "1003"} {
					require.NoError(t, store.SaveMatch(ctx, sampleMatch(room, base.Add(time.Duration(i)*time.Minute), "B")))
				}

				recent, err := store.RecentMatches(ctx, 2)
				require.NoError(t, err)
				require.Len(t, recent, 2)
				assert.Equal(t, "1234", recent[0].RoomID)
				assert.Equal(t, "1003", recent[1].RoomID)
				assert.Len(t, recent[1].Players, 2)
			})

			t.Run("PlayerStats", func(t *testing.T) {
				stats, err := store.PlayerStats(ctx, "alice")
				require.NoError(t, err)
				assert.Equal(t, 4, stats.Matches)
				assert.Equal(t, 1, stats.Wins)
				assert.EqualValues(t, 4*420, stats.TotalScore)
				assert.EqualValues(t, 420, stats.BestScore)

				_, err = store.PlayerStats(ctx, "nobody")
				assert.ErrorIs(t, err, ErrRecordNotFound)
			})
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultRecentLimit, clampLimit(0))
	assert.Equal(t, 5, clampLimit(5))
	assert.Equal(t, maxRecentLimit, clampLimit(1000))
}
