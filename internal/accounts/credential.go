package accounts

import (
	"strings"
	"time"
)

// Credential maps an email/password login to the actor id used across the ledger.
type Credential struct {
	ActorID      string    `gorm:"column:actor_id;primaryKey;size:64;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

// TableName exposes the table backing credentials.
func (Credential) TableName() string {
	return "credentials"
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
