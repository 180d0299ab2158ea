package models

import "time"

// Statistics holds per-user rejection counters keyed by the state the
// application was in when it was rejected.
type Statistics struct {
	UserID            string         `json:"userId"`
	RejectionsByState map[string]int `json:"rejectionsByState"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// NewStatistics returns empty counters for userID.
func NewStatistics(userID string) *Statistics {
	return &Statistics{UserID: userID, RejectionsByState: make(map[string]int)}
}

// Increment bumps the counter for stateID.
func (s *Statistics) Increment(stateID string) {
	if s.RejectionsByState == nil {
		s.RejectionsByState = make(map[string]int)
	}
	s.RejectionsByState[stateID]++
}

// SystemState is the singleton bookkeeping row of periodic jobs.
type SystemState struct {
	LastStatisticsRunUTC *time.Time `db:"last_statistics_run_utc" json:"lastStatisticsRunUtc,omitempty"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updatedAt"`
}

// ApplicationStateDefinition is an entry of the workflow state catalog new
// applications are seeded from.
type ApplicationStateDefinition struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	SeqNo    int    `db:"seq_no" json:"seqNo"`
	IsActive bool   `db:"is_active" json:"isActive"`
}
