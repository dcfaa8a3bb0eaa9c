package models

import "time"

// Target is a URL registered by an owner to be probed on a fixed interval.
// Targets are never hard-deleted; removal clears Active.
type Target struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerID     string     `json:"owner_id" gorm:"not null;index"`
	URL         string     `json:"url" gorm:"not null"`
	Interval    int        `json:"interval" gorm:"not null"` // minutes
	Active      bool       `json:"active" gorm:"not null;default:true;index"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Target
func (Target) TableName() string {
	return "targets"
}
