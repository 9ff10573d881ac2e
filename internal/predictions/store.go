// Package predictions is the local cache of a user's game picks, kept in a
// bbolt file keyed by game id.
package predictions

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"cfbplayoff/ingestion/internal/models"

	"github.com/benbjohnson/clock"
	bolt "go.etcd.io/bbolt"
)

const bucketPredictions = "predictions"

// ErrNegativeScore is returned by Set for a predicted score below zero
var ErrNegativeScore = errors.New("predicted score must not be negative")

// Store persists predictions
type Store struct {
	db    *bolt.DB
	clock clock.Clock
}

// Open opens or creates the prediction file at path
func Open(path string) (*Store, error) {
	return OpenWithClock(path, clock.New())
}

// OpenWithClock is Open with an explicit clock for UpdatedAt stamps
func OpenWithClock(path string, clk clock.Clock) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening prediction store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketPredictions)); err != nil {
			return fmt.Errorf("creating predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, clock: clk}, nil
}

// Close closes the underlying file
func (s *Store) Close() error {
	return s.db.Close()
}

func key(gameID int) []byte {
	return []byte(strconv.Itoa(gameID))
}

func get(b *bolt.Bucket, gameID int) (*models.Prediction, error) {
	data := b.Get(key(gameID))
	if data == nil {
		return nil, nil
	}

	var p models.Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding prediction %d: %w", gameID, err)
	}
	return &p, nil
}

func put(b *bolt.Bucket, p *models.Prediction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding prediction %d: %w", p.GameID, err)
	}
	return b.Put(key(p.GameID), data)
}

// Get returns the prediction for a game, or nil when there is none
func (s *Store) Get(gameID int) (*models.Prediction, error) {
	var p *models.Prediction
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		p, err = get(tx.Bucket([]byte(bucketPredictions)), gameID)
		return err
	})
	return p, err
}

// Set stores a pick, replacing any earlier one for the game
func (s *Store) Set(gameID int, winner models.Side, homeScore, awayScore *int) (*models.Prediction, error) {
	if _, err := models.ParseSide(string(winner)); err != nil {
		return nil, err
	}
	for _, score := range []*int{homeScore, awayScore} {
		if score != nil && *score < 0 {
			return nil, ErrNegativeScore
		}
	}

	p := &models.Prediction{
		GameID:          gameID,
		PredictedWinner: winner,
		HomeScore:       homeScore,
		AwayScore:       awayScore,
		UpdatedAt:       s.clock.Now().UTC(),
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket([]byte(bucketPredictions)), p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Toggle picks winner for a game. Picking the winner already chosen removes
// the prediction, in which case nil is returned.
func (s *Store) Toggle(gameID int, winner models.Side) (*models.Prediction, error) {
	if _, err := models.ParseSide(string(winner)); err != nil {
		return nil, err
	}

	var result *models.Prediction
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketPredictions))

		existing, err := get(b, gameID)
		if err != nil {
			return err
		}
		if existing != nil && existing.PredictedWinner == winner {
			return b.Delete(key(gameID))
		}

		result = &models.Prediction{
			GameID:          gameID,
			PredictedWinner: winner,
			UpdatedAt:       s.clock.Now().UTC(),
		}
		return put(b, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Remove deletes the prediction for a game. Removing a missing one is a
// no-op.
func (s *Store) Remove(gameID int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPredictions)).Delete(key(gameID))
	})
}

// Clear deletes every prediction
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketPredictions)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("deleting predictions bucket: %w", err)
		}
		_, err := tx.CreateBucket([]byte(bucketPredictions))
		return err
	})
}

// All returns every prediction ordered by game id
func (s *Store) All() ([]*models.Prediction, error) {
	var out []*models.Prediction

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPredictions)).ForEach(func(k, v []byte) error {
			var p models.Prediction
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decoding prediction %s: %w", k, err)
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out, nil
}
