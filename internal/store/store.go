// Package store implements the durable message record store. All worker
// coordination happens here: claims, lease-conditioned writes, and release.
// Nothing in the pipeline mutates a record except through this package.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/osobot/oso/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrLostLease is returned when a lease-conditioned write matched no row:
// the lease expired and another worker reclaimed the record. The caller
// must abandon its attempt; the record will be re-processed under the new
// lease.
var ErrLostLease = errors.New("store: lease lost")

// nowFunc is swapped out in tests to control lease arithmetic.
var nowFunc = time.Now

// Store wraps the GORM connection with the lease timeout policy.
type Store struct {
	db           *gorm.DB
	leaseTimeout time.Duration
}

// New creates a Store. The lease timeout must be long enough to cover the
// slowest external content-generation call plus margin.
func New(db *gorm.DB, leaseTimeout time.Duration) *Store {
	return &Store{db: db, leaseTimeout: leaseTimeout}
}

// DB exposes the underlying connection for read-only consumers (dashboard).
func (s *Store) DB() *gorm.DB { return s.db }

// LeaseTimeout returns the configured lease timeout.
func (s *Store) LeaseTimeout() time.Duration { return s.leaseTimeout }

// InsertIfAbsent inserts a record only if its id is not already present and
// reports whether an insert happened. Re-delivery of an already-stored id
// is a silent no-op, which makes at-least-once ingestion safe.
func (s *Store) InsertIfAbsent(msg *models.Msg) (bool, error) {
	if msg.ID == "" {
		return false, fmt.Errorf("store: insert: id is required")
	}
	inserted := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		images := msg.Images
		msg.Images = nil
		defer func() { msg.Images = images }()

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(msg)
		if result.Error != nil {
			return fmt.Errorf("store: insert %s: %w", msg.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true

		for i := range images {
			images[i].MsgID = msg.ID
			images[i].Position = i
			if err := tx.Create(&images[i]).Error; err != nil {
				return fmt.Errorf("store: insert image %d for %s: %w", i, msg.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Get loads one record with its attachments.
func (s *Store) Get(id string) (*models.Msg, error) {
	var msg models.Msg
	err := s.db.Preload("Images", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&msg, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	return &msg, nil
}

// BySender returns a sender's records since the given time, newest first.
// Backed by the (sender, created_at) index; used by the publish policy's
// rate gate and the dashboard.
func (s *Store) BySender(sender string, since time.Time) ([]models.Msg, error) {
	var msgs []models.Msg
	err := s.db.
		Where("sender = ? AND created_at >= ?", sender, since.Unix()).
		Order("created_at DESC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("store: by sender %s: %w", sender, err)
	}
	return msgs, nil
}

// Thread returns the recent exchange between the message's two parties on
// the same platform, oldest first, capped at limit. Outbound replies ride
// along on the inbound rows' reply_body, so only inbound rows are read.
func (s *Store) Thread(msg *models.Msg, lookback time.Duration, limit int) ([]models.Msg, error) {
	since := nowFunc().Add(-lookback).Unix()
	var msgs []models.Msg
	err := s.db.
		Where("created_at >= ? AND source = ? AND is_receiver_me = ?", since, msg.Source, true).
		Where("(sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)",
			msg.Sender, msg.Receiver, msg.Receiver, msg.Sender).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("store: thread for %s: %w", msg.ID, err)
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MergeMeta folds kv into the record's meta document and commits it under
// the lease. Existing keys not named in kv survive untouched; only the
// lease holder writes meta, so the read-merge-write here cannot race.
func (s *Store) MergeMeta(id string, token int64, kv map[string]interface{}) error {
	var msg models.Msg
	if err := s.db.Select("meta").First(&msg, "id = ?", id).Error; err != nil {
		return fmt.Errorf("store: merge meta %s: %w", id, err)
	}
	doc := msg.MetaMap()
	for k, v := range kv {
		doc[k] = v
	}
	buf, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: merge meta %s: %w", id, err)
	}
	return s.PersistStage(id, token, map[string]interface{}{"meta": string(buf)})
}

// rejectedClassList returns the reject set in stable order for SQL IN.
func rejectedClassList() []string {
	out := make([]string, 0, len(models.RejectClasses))
	for c := range models.RejectClasses {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
