// Package tasks holds housekeeping sweeps. They are triggered from read
// paths rather than a scheduler, so they run at-least-once and must stay
// idempotent.
package tasks

import (
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/schedule"
)

// CleanupInvalidInvites deletes invite codes that are expired or have no
// remaining uses. Returns the number removed.
func CleanupInvalidInvites(db *gorm.DB, now time.Time) (int, error) {
	deleted := 0

	res := db.Unscoped().Where("remaining_uses <= 0").Delete(&models.InviteCode{})
	if res.Error != nil {
		return deleted, res.Error
	}
	deleted += int(res.RowsAffected)

	res = db.Unscoped().Where("expiration_date IS NOT NULL AND expiration_date < ?", now).Delete(&models.InviteCode{})
	if res.Error != nil {
		return deleted, res.Error
	}
	deleted += int(res.RowsAffected)

	return deleted, nil
}

var (
	sweepMu   sync.Mutex
	lastSweep time.Time
)

// SweepInterval is how long read paths wait between opportunistic sweeps.
const SweepInterval = time.Minute

// MaybeSweep runs the past-entry and invite cleanups at most once per
// SweepInterval. Called from schedule read handlers; errors are logged and
// swallowed so a failed sweep never breaks a page load.
func MaybeSweep(db *gorm.DB, now time.Time) {
	sweepMu.Lock()
	if now.Sub(lastSweep) < SweepInterval {
		sweepMu.Unlock()
		return
	}
	lastSweep = now
	sweepMu.Unlock()

	if n, err := schedule.CleanupPastEntries(db, now); err != nil {
		log.Println("cleanup: past entries sweep failed:", err)
	} else if n > 0 {
		log.Printf("cleanup: removed %d past schedule entries", n)
	}

	if n, err := CleanupInvalidInvites(db, now); err != nil {
		log.Println("cleanup: invite sweep failed:", err)
	} else if n > 0 {
		log.Printf("cleanup: removed %d invalid invite codes", n)
	}
}
