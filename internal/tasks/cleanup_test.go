package tasks

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/storage"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("TEST_DB_HOST not set, skipping database tests")
	}
	if err := storage.ConnectTestingDatabase(); err != nil {
		t.Fatalf("test database connection failed: %v", err)
	}
	db := storage.DB
	if err := db.AutoMigrate(&models.User{}, &models.InviteCode{}); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	db.Exec("TRUNCATE TABLE users, invite_codes RESTART IDENTITY CASCADE")
	return db
}

func TestCleanupInvalidInvites(t *testing.T) {
	db := testDB(t)

	admin := models.User{Username: "head", Email: "head@school.test", PasswordHash: "x", Role: models.RoleAdmin}
	assert.NoError(t, db.Create(&admin).Error)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 30)

	valid := models.InviteCode{Code: "valid", CreatorID: admin.ID, RemainingUses: 3, ExpirationDate: &future}
	expired := models.InviteCode{Code: "expired", CreatorID: admin.ID, RemainingUses: 3, ExpirationDate: &past}
	spent := models.InviteCode{Code: "spent", CreatorID: admin.ID, RemainingUses: 0}
	everlasting := models.InviteCode{Code: "everlasting", CreatorID: admin.ID, RemainingUses: 1}
	assert.NoError(t, db.Create(&valid).Error)
	assert.NoError(t, db.Create(&expired).Error)
	assert.NoError(t, db.Create(&spent).Error)
	assert.NoError(t, db.Create(&everlasting).Error)

	removed, err := CleanupInvalidInvites(db, now)
	assert.NoError(t, err)
	assert.Equal(t, 2, removed)

	var codes []string
	assert.NoError(t, db.Model(&models.InviteCode{}).Order("code").Pluck("code", &codes).Error)
	assert.Equal(t, []string{"everlasting", "valid"}, codes)
}
