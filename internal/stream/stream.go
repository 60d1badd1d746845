package stream

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/solswap/swap-api/internal/events"
	"github.com/solswap/swap-api/internal/orders"
	"github.com/solswap/swap-api/internal/types"
)

const writeTimeout = 10 * time.Second

// Message is the wire format of the live status stream.
type Message struct {
	Type      string                 `json:"type"`
	OrderID   string                 `json:"order_id,omitempty"`
	Status    types.OrderStatus      `json:"status,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Data      *types.StatusEventData `json:"data,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// GinHandlers contains the WebSocket handlers for live order status
// streaming.
type GinHandlers struct {
	orders   *orders.Service
	bus      *events.Bus
	upgrader websocket.Upgrader
}

// NewGinHandlers creates the stream handlers over the given order service
// and event bus.
func NewGinHandlers(orderService *orders.Service, bus *events.Bus) *GinHandlers {
	return &GinHandlers{
		orders: orderService,
		bus:    bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// OrderStatusHandler upgrades the connection and streams one order's status
// transitions. The subscription is taken out before the snapshot is fetched,
// so a transition landing in between is buffered rather than missed; the
// rank filter then drops anything the snapshot already covered. The stream
// closes once a terminal status has been delivered.
func (h *GinHandlers) OrderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		logger := log.With().
			Str("component", "stream").
			Str("order_id", orderID).
			Logger()
		logger.Info().Msg("websocket connection established")

		sub := h.bus.Subscribe(orderID)
		defer sub.Unsubscribe()

		order, err := h.orders.Get(orderID)
		if err != nil {
			msg := "internal server error"
			if errors.Is(err, types.ErrNotFound) {
				msg = "order not found"
			}
			h.write(conn, Message{Type: "error", Message: msg})
			return
		}

		snapshot := Message{
			Type:      "status",
			OrderID:   order.OrderID,
			Status:    order.Status,
			Timestamp: time.Now(),
			Data: &types.StatusEventData{
				SelectedVenue: order.SelectedVenue,
				OutputAmount:  order.OutputAmount,
				TxHash:        order.TxHash,
				Error:         order.Error,
			},
		}
		if err := h.write(conn, snapshot); err != nil {
			return
		}
		if order.Status.Terminal() {
			logger.Info().Str("status", string(order.Status)).Msg("order already terminal, closing stream")
			return
		}

		// Reader goroutine: consumes control frames and signals client
		// disconnect. All writes stay on this goroutine.
		disconnected := make(chan struct{})
		go func() {
			defer close(disconnected)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		delivered := order.Status
		for {
			select {
			case event, ok := <-sub.Events():
				if !ok {
					return
				}
				if event.Status.Rank() <= delivered.Rank() {
					continue
				}
				delivered = event.Status

				msg := Message{
					Type:      "status",
					OrderID:   event.OrderID,
					Status:    event.Status,
					Timestamp: event.Timestamp,
					Data:      event.Data,
				}
				if err := h.write(conn, msg); err != nil {
					logger.Warn().Err(err).Msg("failed to write stream message")
					return
				}
				if event.Status.Terminal() {
					logger.Info().Str("status", string(event.Status)).Msg("terminal status delivered, closing stream")
					return
				}

			case <-disconnected:
				logger.Info().Msg("websocket client disconnected")
				return
			}
		}
	}
}

func (h *GinHandlers) write(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
