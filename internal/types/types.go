package types

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Instrument identifies a tradable asset on the exchange.
type Instrument struct {
	Symbol   string `json:"symbol"`
	MarketID int64  `json:"market_id"`
}

// Channel is the push channel carrying the instrument's trades.
func (i Instrument) Channel() string {
	return "last-trades:" + strconv.FormatInt(i.MarketID, 10)
}

// Source tells where a PricePoint came from.
type Source string

const (
	SourcePush Source = "push"
	SourcePull Source = "pull"
)

// PricePoint is a single price observation. It is never mutated after creation.
type PricePoint struct {
	Instrument Instrument          `json:"instrument"`
	Price      decimal.Decimal     `json:"price"`
	Volume     decimal.NullDecimal `json:"volume"`
	Side       string              `json:"side,omitempty"`
	ObservedAt time.Time           `json:"observed_at"`
	Source     Source              `json:"source"`
}

// AlertRule is a user's standing request to be notified when the price of
// an instrument moves by ThresholdPercent from LastNotifiedPrice.
type AlertRule struct {
	UserID            int64
	Instrument        Instrument
	ThresholdPercent  decimal.Decimal
	LastNotifiedPrice decimal.NullDecimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
	// Version is assigned by the store and grows each time the rule is
	// replaced.
	Version int64
}

// Primed reports whether the rule has a usable baseline.
func (r AlertRule) Primed() bool {
	return r.LastNotifiedPrice.Valid && r.LastNotifiedPrice.Decimal.IsPositive()
}

// Direction of a price move.
type Direction int

const (
	Down Direction = -1
	Up   Direction = 1
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// Notification describes a fired alert before it is formatted.
type Notification struct {
	UserID        int64
	Instrument    Instrument
	Direction     Direction
	ChangePercent decimal.Decimal
	PreviousPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	Threshold     decimal.Decimal
	At            time.Time
}
