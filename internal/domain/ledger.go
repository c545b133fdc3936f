package domain

import "time"

// ScheduledOrderStatus is the terminal-state lifecycle of a deferred signal.
type ScheduledOrderStatus string

const (
	ScheduledPending  ScheduledOrderStatus = "pending"
	ScheduledExecuted ScheduledOrderStatus = "executed"
	ScheduledFailed   ScheduledOrderStatus = "failed"
)

// ScheduledOrder is the durable projection of a Signal that arrived while its
// market was closed. SignalPayload carries the full original payload
// (msgpack-encoded) for faithful reconstruction at replay time.
type ScheduledOrder struct {
	ID            int64
	Ticker        string
	CompanyName   string
	Market        Market
	SignalType    SignalType
	Price         *float64
	ExecuteAfter  time.Time
	Status        ScheduledOrderStatus
	CreatedAt     time.Time
	ExecutedAt    *time.Time
	ErrorMessage  *string
	SignalPayload []byte
}

// TradeLog is an append-only record of every attempted order, successful or
// not. Never updated after insert.
type TradeLog struct {
	Timestamp   time.Time
	Ticker      string
	Market      Market
	Action      SignalType
	OrderNo     string
	Message     string
	Quantity    float64
	Price       float64
	TotalAmount float64
	Success     bool
	ID          int64
}

// Position is the bot's view of a currently held ticker. Absence from the
// position store means flat; there is no partial-quantity tracking.
type Position struct {
	BuyDate      time.Time
	LastUpdated  time.Time
	Ticker       string
	Market       Market
	TriggerType  string
	Sector       string
	Scenario     []byte
	BuyPrice     float64
	CurrentPrice float64
	TargetPrice  *float64
	StopLoss     *float64
}

// OrderResult is the terminal outcome of a coordinator submission.
type OrderResult struct {
	Reason   string
	OrderNo  string
	Success  bool
	Skipped  bool
	Quantity float64
	Price    float64
}
