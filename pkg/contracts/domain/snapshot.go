package domain

import "time"

// ContributionEntry attributes part of the index's point change to one
// constituent for the snapshot's period.
type ContributionEntry struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// CategoryEntry is an aggregated contribution for one sector or industry.
type CategoryEntry struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Snapshot is the immutable result set of one completed analysis run.
// Handlers receive it by value and never observe later runs mutating it;
// each run produces a fresh snapshot with a new RunID.
type Snapshot struct {
	RunID       string              `json:"run_id"`
	Period      time.Time           `json:"period"`
	GeneratedAt time.Time           `json:"generated_at"`
	IndexChange float64             `json:"index_change"`
	Stocks      []ContributionEntry `json:"stocks"`
	Sectors     []CategoryEntry     `json:"sectors"`
	Industries  []CategoryEntry     `json:"industries"`
}
