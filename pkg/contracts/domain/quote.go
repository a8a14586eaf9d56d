package domain

import "time"

// Quote is a live price observation for one constituent.
// HasChange is false when the source page exposed a price but no previous
// close; such quotes must not be treated as a zero price change.
type Quote struct {
	Code         string    `json:"code"`
	CurrentPrice float64   `json:"current_price"`
	PrevClose    float64   `json:"prev_close"`
	Change       float64   `json:"change"`
	HasChange    bool      `json:"has_change"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// IndexQuote is the index's own live observation for one trading day.
type IndexQuote struct {
	CurrentPrice float64   `json:"current_price"`
	PrevClose    float64   `json:"prev_close"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Change       float64   `json:"change"`
	FetchedAt    time.Time `json:"fetched_at"`
}
