package store

import (
	"fmt"

	"github.com/osobot/oso/internal/models"
	"gorm.io/gorm"
)

// ClaimNext atomically claims up to limit processable records and returns
// them with the lease token set. Eligible records are inbound, not yet
// fully handled, and either unlocked or holding a lease older than the
// timeout (an abandoned claim from a crashed worker).
//
// The claim itself is a per-row conditional update: a row counts as won
// only when the UPDATE matched it while still claimable, so two racing
// claimers can never both take the same record. The loser simply sees a
// shorter result set.
func (s *Store) ClaimNext(limit int) ([]models.Msg, error) {
	if limit <= 0 {
		return nil, nil
	}

	now := nowFunc()
	cutoff := now.Add(-s.leaseTimeout).UnixNano()
	token := now.UnixNano()

	var candidates []models.Msg
	err := s.db.
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("is_receiver_me = ?", true).
		Where("locked_at IS NULL OR locked_at < ?", cutoff).
		Where("classification IS NULL OR (classification NOT IN ? AND reply_id IS NULL)", rejectedClassList()).
		Where("meta IS NULL OR meta NOT LIKE ?", `%"failed":true%`).
		Order("created_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("store: claim candidates: %w", err)
	}

	var claimed []models.Msg
	for i := range candidates {
		result := s.db.Model(&models.Msg{}).
			Where("id = ? AND (locked_at IS NULL OR locked_at < ?)", candidates[i].ID, cutoff).
			Update("locked_at", token)
		if result.Error != nil {
			return claimed, fmt.Errorf("store: claim %s: %w", candidates[i].ID, result.Error)
		}
		if result.RowsAffected == 0 {
			// Lost the race for this row; move on.
			continue
		}
		// Re-read after winning: a previous holder may have committed
		// stage output between the candidate scan and our claim.
		msg, err := s.Get(candidates[i].ID)
		if err != nil {
			return claimed, err
		}
		msg.LockedAt = &token
		claimed = append(claimed, *msg)
	}
	return claimed, nil
}
