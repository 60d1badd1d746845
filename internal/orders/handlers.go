package orders

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/solswap/swap-api/internal/auth"
	"github.com/solswap/swap-api/internal/types"
	"github.com/solswap/swap-api/pkg/response"
)

// Enqueuer hands an order off to the submission queue for asynchronous
// execution. Enqueueing an already-queued order id is a no-op.
type Enqueuer interface {
	Enqueue(orderID string) error
}

// Executor drives a single order through the execution pipeline to a
// terminal status. Used by the synchronous execution endpoint.
type Executor interface {
	Execute(ctx context.Context, orderID string) (*types.Order, error)
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service  *Service
	queue    Enqueuer
	executor Executor
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(service *Service, queue Enqueuer, executor Executor) *GinHandlers {
	return &GinHandlers{
		service:  service,
		queue:    queue,
		executor: executor,
	}
}

// requireClientID extracts the authenticated client id from the JWT claims
// placed in the context by the auth middleware. Writes the error response
// itself and returns false when the claims are missing or malformed.
func requireClientID(c *gin.Context) (string, bool) {
	claims, exists := c.Get("claims")
	if !exists {
		response.Unauthorized(c, "Missing authentication claims")
		return "", false
	}

	clientID := auth.GetClientID(claims)
	if clientID == "" {
		response.Unauthorized(c, "Invalid client ID in token")
		return "", false
	}
	return clientID, true
}

// CreateOrderHandler handles POST requests to create new orders without
// triggering execution.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, ok := requireClientID(c)
		if !ok {
			return
		}

		var req SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.Submit(req)
		if err == nil {
			log.Info().
				Str("client_id", clientID).
				Str("order_id", order.OrderID).
				Msg("order accepted")
		}
		response.Handle(c, order, err)
	}
}

// QueuedOrderResponse acknowledges an order accepted for asynchronous
// execution.
type QueuedOrderResponse struct {
	OrderID string            `json:"order_id"`
	Status  types.OrderStatus `json:"status"`
	Message string            `json:"message"`
}

// CreateAndExecuteOrderHandler handles POST requests that create an order
// and enqueue it for execution in one call. The response returns as soon as
// the task is accepted; the outcome is observable via query or the stream.
func (h *GinHandlers) CreateAndExecuteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, ok := requireClientID(c)
		if !ok {
			return
		}

		var req SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.Submit(req)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		if err := h.queue.Enqueue(order.OrderID); err != nil {
			log.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to enqueue order")
			response.InternalError(c, "failed to queue order for execution")
			return
		}
		h.service.NotifyQueued(order)

		log.Info().
			Str("client_id", clientID).
			Str("order_id", order.OrderID).
			Msg("order accepted for execution")

		response.Success(c, QueuedOrderResponse{
			OrderID: order.OrderID,
			Status:  order.Status,
			Message: "order queued for execution",
		})
	}
}

// GetOrderHandler handles GET requests to retrieve a single order.
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "order id is required")
			return
		}

		order, err := h.service.Get(orderID)
		response.Handle(c, order, err)
	}
}

// ListWalletOrdersHandler handles GET requests for a wallet's orders,
// newest first. Query parameter: limit (clamped to 1-100).
func (h *GinHandlers) ListWalletOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.Param("wallet")
		if wallet == "" {
			response.BadRequest(c, "wallet is required")
			return
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				response.BadRequest(c, "limit must be an integer")
				return
			}
			limit = parsed
		}

		orders, err := h.service.ListByWallet(wallet, limit)
		response.Handle(c, orders, err)
	}
}

// ExecuteOrderHandler handles POST requests that drive an order through the
// pipeline synchronously. Only PENDING orders are accepted.
// URL parameter: order_id
func (h *GinHandlers) ExecuteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "order id is required")
			return
		}

		order, err := h.executor.Execute(c.Request.Context(), orderID)
		response.Handle(c, order, err)
	}
}
