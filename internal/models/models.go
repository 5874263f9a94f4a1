package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
)

type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	DisplayName  string
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null;default:teacher"`
	IsSuperuser  bool   `gorm:"default:false"`
}

// IsAdmin reports whether the user may manage members, invites and schedule configuration.
func (u *User) IsAdmin() bool {
	return u.IsSuperuser || u.Role == RoleAdmin
}

type InviteCode struct {
	gorm.Model
	Code           string     `gorm:"uniqueIndex;not null"`
	CreatorID      uint       `gorm:"index;not null"`
	Creator        User       `gorm:"foreignKey:CreatorID;constraint:OnDelete:RESTRICT"`
	ExpirationDate *time.Time // nil means the code never expires
	RemainingUses  int        `gorm:"not null;default:1"`
}

// IsValid reports whether the code can still be redeemed at the given time.
func (i *InviteCode) IsValid(now time.Time) bool {
	if i.ExpirationDate != nil && i.ExpirationDate.Before(now) {
		return false
	}
	return i.RemainingUses > 0
}

type Classroom struct {
	gorm.Model
	Name        string `gorm:"uniqueIndex;not null"`
	DisplayName string `gorm:"not null"`
	CreatedByID uint   `gorm:"not null"`
	CreatedBy   User   `gorm:"foreignKey:CreatedByID;constraint:OnDelete:RESTRICT"`
}

type Subject struct {
	gorm.Model
	Name        string `gorm:"uniqueIndex;not null"`
	DisplayName string `gorm:"not null"`
	CreatedByID uint   `gorm:"not null"`
	CreatedBy   User   `gorm:"foreignKey:CreatedByID;constraint:OnDelete:RESTRICT"`
}

type Course struct {
	gorm.Model
	Name        string `gorm:"uniqueIndex;not null"`
	DisplayName string `gorm:"not null"`
	CreatedByID uint   `gorm:"not null"`
	CreatedBy   User   `gorm:"foreignKey:CreatedByID;constraint:OnDelete:RESTRICT"`
}

type ClassGroup struct {
	gorm.Model
	Name        string `gorm:"uniqueIndex;not null"`
	DisplayName string `gorm:"not null"`
	CreatedByID uint   `gorm:"not null"`
	CreatedBy   User   `gorm:"foreignKey:CreatedByID;constraint:OnDelete:RESTRICT"`
}

type AuditLog struct {
	gorm.Model
	ActorID   *uint  `gorm:"index"` // nil for system actions and deleted accounts
	Actor     *User  `gorm:"foreignKey:ActorID;constraint:OnDelete:SET NULL"`
	Action    string `gorm:"size:100;not null"`
	Target    string `gorm:"size:200"`
	IP        string `gorm:"size:45"`
	UserAgent string `gorm:"size:400"`
	Extra     string `gorm:"type:jsonb;default:'{}'"`
}
