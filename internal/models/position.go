package models

import "gorm.io/gorm"

// Position represents the held quantity of one ticker with its pricing.
// Ticker is the ledger's unique key; a persisted row always has Qty > 0 —
// a mutation driving Qty to zero or below deletes the row instead.
type Position struct {
	gorm.Model
	Ticker       string   `gorm:"uniqueIndex;not null" json:"ticker"`
	Qty          float64  `gorm:"not null" json:"qty"`
	ExecPrice    *float64 `json:"exec_price"`
	CurrentPrice *float64 `json:"current_price"`
	// Version stamps every committed mutation; updates are guarded with a
	// version check so concurrent read-modify-writes on one ticker cannot
	// silently overwrite each other.
	Version int64 `gorm:"not null;default:0" json:"-"`
}

// Record is the wire form of a position used by the HTTP API and the
// agent tools.
type Record struct {
	Ticker       string   `json:"ticker"`
	Qty          float64  `json:"qty"`
	ExecPrice    *float64 `json:"exec_price"`
	CurrentPrice *float64 `json:"current_price"`
}

// AsRecord converts a position to its wire form. A nil position converts
// to the zero Record; callers that must emit an empty object instead of
// null should check for nil first.
func (p *Position) AsRecord() Record {
	if p == nil {
		return Record{}
	}
	return Record{
		Ticker:       p.Ticker,
		Qty:          p.Qty,
		ExecPrice:    p.ExecPrice,
		CurrentPrice: p.CurrentPrice,
	}
}
