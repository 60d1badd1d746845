package orders

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/solswap/swap-api/internal/events"
	"github.com/solswap/swap-api/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Service owns order creation, queries and the status transitions of the
// execution pipeline. Every transition is persisted first and broadcast on
// the event bus second, so a subscriber never observes a status the store
// does not yet reflect.
type Service struct {
	db  *Database
	bus *events.Bus
}

// NewService creates a new order service with the given database connection
// and event bus.
func NewService(gormDB *gorm.DB, bus *events.Bus) *Service {
	return &Service{
		db:  NewDatabase(gormDB),
		bus: bus,
	}
}

// SubmitRequest is the payload for creating a new swap order.
type SubmitRequest struct {
	UserWallet  string  `json:"user_wallet"`
	InputToken  string  `json:"input_token"`
	OutputToken string  `json:"output_token"`
	InputAmount float64 `json:"input_amount"`
}

// Submit validates the request and creates a PENDING order with a
// time-ordered id. No event is published here; the order only becomes
// observable through the pipeline once execution is triggered.
func (s *Service) Submit(req SubmitRequest) (*types.Order, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	order := &types.Order{
		OrderID:     id.String(),
		UserWallet:  req.UserWallet,
		InputToken:  req.InputToken,
		OutputToken: req.OutputToken,
		InputAmount: req.InputAmount,
		Status:      types.StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := s.db.CreateOrder(order); err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("user_wallet", order.UserWallet).
		Str("input_token", order.InputToken).
		Str("output_token", order.OutputToken).
		Float64("input_amount", order.InputAmount).
		Msg("order created")

	return order, nil
}

// Get retrieves an order by id.
func (s *Service) Get(orderID string) (*types.Order, error) {
	return s.db.GetOrder(orderID)
}

// ListByWallet returns a wallet's orders, newest first. The limit is clamped
// to 1..100 and defaults to 50.
func (s *Service) ListByWallet(wallet string, limit int) ([]types.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.db.ListOrdersByWallet(wallet, limit)
}

// NotifyQueued broadcasts the initial PENDING event once an order has been
// handed to the submission queue.
func (s *Service) NotifyQueued(order *types.Order) {
	s.publish(order.OrderID, types.StatusPending, nil)
}

// ClaimRouting atomically claims a PENDING order for execution and moves it
// to ROUTING. Only the first concurrent claim succeeds; later ones observe
// ErrInvalidState.
func (s *Service) ClaimRouting(orderID string) (*types.Order, error) {
	order, err := s.db.ClaimPending(orderID)
	if err != nil {
		return nil, err
	}
	s.publish(orderID, types.StatusRouting, nil)
	return order, nil
}

// Transition persists a bookkeeping status (BUILDING, SUBMITTED) and
// broadcasts it.
func (s *Service) Transition(orderID string, status types.OrderStatus) (*types.Order, error) {
	order, err := s.db.UpdateStatus(orderID, status, "")
	if err != nil {
		return nil, err
	}
	s.publish(orderID, status, nil)
	return order, nil
}

// Complete persists the execution outcome and moves the order to CONFIRMED
// in one atomic update, then broadcasts the final event.
func (s *Service) Complete(orderID, venue string, outputAmount float64, txHash string) (*types.Order, error) {
	order, err := s.db.UpdateExecution(orderID, venue, outputAmount, txHash, types.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	s.publish(orderID, types.StatusConfirmed, &types.StatusEventData{
		SelectedVenue: venue,
		OutputAmount:  outputAmount,
		TxHash:        txHash,
	})
	return order, nil
}

// Fail records the last error on the order, moves it to FAILED and
// broadcasts the terminal event.
func (s *Service) Fail(orderID, errText string) (*types.Order, error) {
	order, err := s.db.UpdateStatus(orderID, types.StatusFailed, errText)
	if err != nil {
		return nil, err
	}
	s.publish(orderID, types.StatusFailed, &types.StatusEventData{Error: errText})
	return order, nil
}

func (s *Service) publish(orderID string, status types.OrderStatus, data *types.StatusEventData) {
	s.bus.Publish(types.StatusEvent{
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func validateSubmit(req SubmitRequest) error {
	if strings.TrimSpace(req.UserWallet) == "" {
		return types.NewValidationError("user_wallet", "is required")
	}
	if strings.TrimSpace(req.InputToken) == "" {
		return types.NewValidationError("input_token", "is required")
	}
	if strings.TrimSpace(req.OutputToken) == "" {
		return types.NewValidationError("output_token", "is required")
	}
	if req.InputToken == req.OutputToken {
		return types.NewValidationError("output_token", "must differ from input_token")
	}
	if math.IsNaN(req.InputAmount) || math.IsInf(req.InputAmount, 0) {
		return types.NewValidationError("input_amount", "must be a finite number")
	}
	if req.InputAmount <= 0 {
		return types.NewValidationError("input_amount", "must be positive")
	}
	return nil
}
