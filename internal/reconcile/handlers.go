package reconcile

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ksred/autotrader-api/internal/types"
	"github.com/ksred/autotrader-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the reconciliation engine.
type GinHandlers struct {
	supervisor *Supervisor
	store      OrderStore
}

func NewGinHandlers(supervisor *Supervisor, store OrderStore) *GinHandlers {
	return &GinHandlers{
		supervisor: supervisor,
		store:      store,
	}
}

// StatusHandler handles GET requests for the engine's introspection surface:
// how many watches are active and their polling keys.
func (h *GinHandlers) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.supervisor.GetStatus())
	}
}

// StartWatchHandler handles POST requests to arm a watch for an order.
// URL parameter: order_id. The order must exist, carry a broker order id,
// and not already be terminal.
func (h *GinHandlers) StartWatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := strconv.ParseUint(c.Param("order_id"), 10, 64)
		if err != nil {
			response.BadRequest(c, "Invalid order ID")
			return
		}

		order, err := h.store.GetOrder(c.Request.Context(), uint(orderID))
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if order == nil {
			response.NotFound(c, "Order not found")
			return
		}
		if order.BrokerOrderID == "" {
			response.BadRequest(c, "Order has not been accepted by the broker yet")
			return
		}
		if order.Status.Terminal() {
			response.BadRequest(c, "Order is already in a terminal status")
			return
		}

		h.supervisor.StartWatch(order.ID, order.BrokerConnectionID, order.BrokerOrderID)
		response.Success(c, h.supervisor.GetStatus())
	}
}

// GetOrderHandler handles GET requests for a single order, including whether
// the engine is currently watching it.
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := strconv.ParseUint(c.Param("order_id"), 10, 64)
		if err != nil {
			response.BadRequest(c, "Invalid order ID")
			return
		}

		order, err := h.store.GetOrder(c.Request.Context(), uint(orderID))
		if err != nil || order == nil {
			response.NotFound(c, "Order not found")
			return
		}

		watched := false
		for _, key := range h.supervisor.registry.ListActive() {
			if key.OrderID == order.ID {
				watched = true
				break
			}
		}

		response.Success(c, types.OrderStatusResponse{
			Order:   order,
			Watched: watched,
		})
	}
}
