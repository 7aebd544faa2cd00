package store

import (
	"fmt"

	"github.com/osobot/oso/internal/models"
)

// immutableColumns may never appear in a stage update. Ingestion fields are
// frozen at insert and the lease column only moves through claim/release.
var immutableColumns = map[string]bool{
	"id":             true,
	"created_at":     true,
	"locked_at":      true,
	"source":         true,
	"sender":         true,
	"receiver":       true,
	"is_receiver_me": true,
	"subject":        true,
	"body":           true,
}

// PersistStage commits a stage's output fields, conditioned on the caller
// still holding the lease identified by token. A write that matches no row
// means the lease was lost; the caller must stop working on this record
// rather than overwrite another worker's progress.
func (s *Store) PersistStage(id string, token int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	for col := range updates {
		if immutableColumns[col] {
			return fmt.Errorf("store: persist %s: column %q is immutable", id, col)
		}
	}

	result := s.db.Model(&models.Msg{}).
		Where("id = ? AND locked_at = ?", id, token).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("store: persist %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: persist %s: %w", id, ErrLostLease)
	}
	return nil
}

// Release clears the lease, conditioned on still holding it. Releasing a
// lease someone else reclaimed reports ErrLostLease rather than silently
// unlocking their claim.
func (s *Store) Release(id string, token int64) error {
	result := s.db.Model(&models.Msg{}).
		Where("id = ? AND locked_at = ?", id, token).
		Update("locked_at", nil)
	if result.Error != nil {
		return fmt.Errorf("store: release %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: release %s: %w", id, ErrLostLease)
	}
	return nil
}
