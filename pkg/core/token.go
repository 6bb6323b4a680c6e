package core

import (
	"time"
)

// Token is one provider credential drawn from the shared rotating pool.
// Administrators create and delete tokens; every job attempt mutates the
// usage and error counters.
type Token struct {
	ID     string `gorm:"primaryKey;size:36"`
	Secret string `gorm:"size:512;not null"`
	Active bool   `gorm:"index;default:true"`

	LastUsedAt   *time.Time
	RequestCount int64 `gorm:"default:0"`
	ErrorCount   int64 `gorm:"default:0"`

	// DisabledReason records why a token was auto-disabled, e.g. an
	// authentication failure observed by the submission engine.
	DisabledReason string `gorm:"size:255"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// RotationCursor is the single shared round-robin offset into the active
// token list. It is advanced exactly once per batch dispatch via an atomic
// read-modify-write so that concurrent batches never compute overlapping
// token assignments from a stale read.
type RotationCursor struct {
	ID       uint  `gorm:"primaryKey"`
	Position int64 `gorm:"default:0"`

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
