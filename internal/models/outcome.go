package models

import "time"

// ProbeOutcome is one recorded probe result. Rows are append-only.
type ProbeOutcome struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	TargetID   string    `json:"target_id" gorm:"not null;type:varchar(36);index:idx_outcome_target_time"`
	StatusCode int       `json:"status_code"` // 0 = transport failure
	LatencyMS  float64   `json:"latency_ms"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	CheckedAt  time.Time `json:"checked_at" gorm:"not null;index:idx_outcome_target_time,sort:desc"`
}

// TableName specifies the table name for ProbeOutcome
func (ProbeOutcome) TableName() string {
	return "probe_outcomes"
}

// IsSuccessStatus reports whether an HTTP status code counts as a successful
// probe. Redirects count; 4xx, 5xx and the transport-failure sentinel 0 do not.
func IsSuccessStatus(code int) bool {
	return code >= 200 && code < 400
}
