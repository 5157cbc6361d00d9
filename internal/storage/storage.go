// Package storage keeps an audit log of completed predictions in BoltDB.
//
// Records are keyed by model, timestamp and insertion sequence so that history
// for one model can be range-scanned in time order.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"trendcast/internal/predict"
)

const (
	predictionsBucket = "predictions" // Bucket name for prediction records
)

// PredictionRecord is one completed prediction.
type PredictionRecord struct {
	RequestID  string    `json:"requestId,omitempty"`
	Model      string    `json:"model"`
	Version    string    `json:"version"`
	Label      string    `json:"label"`
	Value      float64   `json:"value"`
	Confidence *float64  `json:"confidence,omitempty"`
	Source     string    `json:"source"`
	Trigger    string    `json:"trigger"` // api, stream or schedule
	Series     []float64 `json:"series"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewPredictionRecord captures res for the audit log. trigger names what
// asked for the prediction: api, stream or schedule.
func NewPredictionRecord(res *predict.Result, requestID, trigger string) PredictionRecord {
	return PredictionRecord{
		RequestID:  requestID,
		Model:      res.Model,
		Version:    res.Version,
		Label:      string(res.Label),
		Value:      res.Value,
		Confidence: res.Confidence,
		Source:     string(res.Source),
		Trigger:    trigger,
		Series:     res.Series,
		Timestamp:  res.At,
	}
}

// Store provides persistent storage for prediction history using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "trendcast.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// recordKey orders records by model, then time, then insertion. The
// sequence keeps records with equal timestamps apart.
func recordKey(model string, ts time.Time, seq uint64) []byte {
	// Zero padding keeps lexical and chronological order identical.
	return []byte(fmt.Sprintf("%s\x00%020d\x00%020d", model, ts.UnixNano(), seq))
}

// StorePrediction stores a prediction record. A zero timestamp is replaced
// with the current time.
func (s *Store) StorePrediction(rec PredictionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		return b.Put(recordKey(rec.Model, rec.Timestamp, seq), data)
	})
}

// GetPredictions returns records for model within [start, end], oldest first.
func (s *Store) GetPredictions(model string, start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()

		prefix := []byte(model + "\x00")
		endKey := recordKey(model, end, math.MaxUint64)

		for k, v := c.Seek(recordKey(model, start, 0)); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// LatestPredictions returns up to limit of the newest records for model,
// newest first.
func (s *Store) LatestPredictions(model string, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	var records []PredictionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		prefix := []byte(model + "\x00")

		// Position on the last key with the prefix: seek past it, then step back.
		k, v := c.Seek(append([]byte(model), 0x01))
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}

		for ; k != nil && bytes.HasPrefix(k, prefix) && len(records) < limit; k, v = c.Prev() {
			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}
