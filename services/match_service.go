package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/logger"
	"github.com/wfunc/tugofwar/models"
	"github.com/wfunc/tugofwar/persistence"
)

var ErrArchiveDisabled = errors.New("match archive disabled")

const (
	queueSize   = 128
	saveTimeout = 5 * time.Second
)

// MatchService archives finished matches. It is a room observer: results are
// queued without blocking and written by a single background worker.
type MatchService struct {
	store persistence.MatchStore
	queue chan game.MatchResult
	wg    sync.WaitGroup
	once  sync.Once

	closed bool
	mutex  sync.RWMutex
}

// NewMatchService starts the archive worker. A nil store disables archiving
// but keeps the service usable as an observer.
func NewMatchService(store persistence.MatchStore) *MatchService {
	s := &MatchService{
		store: store,
		queue: make(chan game.MatchResult, queueSize),
	}
	if store != nil {
		s.wg.Add(1)
		go s.run()
	}
	return s
}

func (s *MatchService) run() {
	defer s.wg.Done()
	for result := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		record := models.NewMatchRecord(result)
		if err := s.store.SaveMatch(ctx, record); err != nil {
			logger.Log.Errorf("Archive match of room %s: %v", result.RoomID, err)
		} else {
			logger.Log.Debugf("Archived match %d of room %s", record.ID, result.RoomID)
		}
		cancel()
	}
}

func (s *MatchService) RoundFinished(roomID string, winner game.Team) {}

func (s *MatchService) MatchFinished(result game.MatchResult) {
	if s.store == nil {
		return
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- result:
	default:
		logger.Log.Warnf("Archive queue full, dropping match of room %s", result.RoomID)
	}
}

func (s *MatchService) RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	if s.store == nil {
		return nil, ErrArchiveDisabled
	}
	return s.store.RecentMatches(ctx, limit)
}

func (s *MatchService) PlayerStats(ctx context.Context, username string) (*models.PlayerStats, error) {
	if s.store == nil {
		return nil, ErrArchiveDisabled
	}
	return s.store.PlayerStats(ctx, username)
}

// Close drains queued results, then closes the store.
func (s *MatchService) Close() error {
	var err error
	s.once.Do(func() {
		s.mutex.Lock()
		s.closed = true
		close(s.queue)
		s.mutex.Unlock()

		s.wg.Wait()
		if s.store != nil {
			err = s.store.Close()
		}
	})
	return err
}
