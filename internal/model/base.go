package model

import (
	"time"

	"gorm.io/gorm"
)

// Base carries the identity and timestamps shared by every entity.
// DeletedAt is the tombstone: GORM's default scope hides rows where it is set.
type Base struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// Owner is the tenant that exclusively owns machines and productions.
// Rows are provisioned by the account service.
type Owner struct {
	Base
	Name      string `gorm:"size:255;not null" json:"name"`
	IsPremium bool   `gorm:"not null;default:false" json:"is_premium"`
}
