package model

// Machine represents a piece of production equipment owned by a tenant.
type Machine struct {
	Base
	Model string `gorm:"size:255;not null" json:"model"`
	// SerialNumber is unique across live and tombstoned rows alike.
	SerialNumber string `gorm:"size:255;not null;uniqueIndex" json:"serial_number"`
	OwnerID      int64  `gorm:"index;not null" json:"owner_id"`

	// Associations
	Owner Owner `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}
