package types

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of a swap order.
// Orders only ever move forward: PENDING -> ROUTING -> BUILDING -> SUBMITTED
// and finish in either CONFIRMED or FAILED.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusRouting   OrderStatus = "ROUTING"
	StatusBuilding  OrderStatus = "BUILDING"
	StatusSubmitted OrderStatus = "SUBMITTED"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusFailed    OrderStatus = "FAILED"
)

var statusRank = map[OrderStatus]int{
	StatusPending:   0,
	StatusRouting:   1,
	StatusBuilding:  2,
	StatusSubmitted: 3,
	StatusConfirmed: 4,
	StatusFailed:    4,
}

// Terminal reports whether no further transition may leave the status.
func (s OrderStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Rank returns the position of the status in the forward lifecycle.
// CONFIRMED and FAILED share the final rank.
func (s OrderStatus) Rank() int {
	return statusRank[s]
}

// Order is a swap order owned by a wallet. Wallet, token and amount fields
// are immutable after creation; status and the execution fields are written
// only by the execution worker.
type Order struct {
	gorm.Model    `json:"-"`
	OrderID       string      `gorm:"uniqueIndex" json:"order_id"`
	UserWallet    string      `gorm:"index" json:"user_wallet"`
	InputToken    string      `json:"input_token"`
	OutputToken   string      `json:"output_token"`
	InputAmount   float64     `json:"input_amount"`
	OutputAmount  float64     `json:"output_amount,omitempty"`
	SelectedVenue string      `json:"selected_venue,omitempty"`
	Status        OrderStatus `json:"status"`
	TxHash        string      `json:"tx_hash,omitempty"`
	Error         string      `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Quote is a single venue's offer for a swap. Quotes are ephemeral and valid
// only for the routing decision that produced them.
type Quote struct {
	Venue        string  `json:"venue"`
	InputToken   string  `json:"input_token"`
	OutputToken  string  `json:"output_token"`
	InputAmount  float64 `json:"input_amount"`
	OutputAmount float64 `json:"output_amount"`
	Price        float64 `json:"price"`
	FeeRate      float64 `json:"fee_rate"`
}

// BestQuote is the routing decision: the winning quote, the venue it beat,
// and how far apart they were. PriceDifferencePercent uses the alternative's
// output amount as denominator and is non-finite when that amount is zero.
type BestQuote struct {
	Selected               Quote
	Alternative            Quote
	PriceDifference        float64
	PriceDifferencePercent float64
}

// ExecutionResult is the outcome of submitting a quote to its venue.
type ExecutionResult struct {
	TxHash         string  `json:"tx_hash"`
	ExecutedPrice  float64 `json:"executed_price"`
	ExecutedAmount float64 `json:"executed_amount"`
	SlippagePct    float64 `json:"slippage_pct"`
}

// StatusEventData carries the optional execution payload of a transition.
type StatusEventData struct {
	SelectedVenue string  `json:"selected_venue,omitempty"`
	OutputAmount  float64 `json:"output_amount,omitempty"`
	TxHash        string  `json:"tx_hash,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// StatusEvent is a broadcast order transition. Events are produced by the
// execution worker only and are never persisted.
type StatusEvent struct {
	OrderID   string           `json:"order_id"`
	Status    OrderStatus      `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Data      *StatusEventData `json:"data,omitempty"`
}
