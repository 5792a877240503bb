package inventory

import (
	"context"
	"fmt"

	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// LowStockHandler handles inventory.stock_updated events and raises an
// alert when the new quantity falls into low_stock or out_of_stock
type LowStockHandler struct {
	logger   *zap.Logger
	notifier StockAlertNotifier
}

// StockAlertNotifier is the interface for sending stock alerts
type StockAlertNotifier interface {
	// SendAlert sends a stock alert notification
	SendAlert(ctx context.Context, alert StockAlert) error
}

// StockAlert represents a stock level alert
type StockAlert struct {
	TenantID        string                `json:"tenant_id"`
	ProductID       string                `json:"product_id"`
	VariantID       string                `json:"variant_id,omitempty"`
	CurrentQuantity int                   `json:"current_quantity"`
	Status          inventory.StockStatus `json:"status"`
	Reason          string                `json:"reason,omitempty"`
}

// NewLowStockHandler creates a new handler for stock updates
func NewLowStockHandler(logger *zap.Logger) *LowStockHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LowStockHandler{
		logger: logger,
	}
}

// WithNotifier sets the notifier for sending alerts
func (h *LowStockHandler) WithNotifier(notifier StockAlertNotifier) *LowStockHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *LowStockHandler) EventTypes() []string {
	return []string{inventory.EventTypeStockUpdated}
}

// Handle processes a StockUpdatedEvent
func (h *LowStockHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	updated, ok := event.(*inventory.StockUpdatedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", inventory.EventTypeStockUpdated),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			inventory.EventTypeStockUpdated, event.EventType())
	}

	status := inventory.StockStatusFor(updated.Quantity)
	if status == inventory.StockStatusInStock {
		return nil
	}

	alert := StockAlert{
		TenantID:        event.TenantID().String(),
		ProductID:       updated.AggregateID(),
		VariantID:       updated.VariantID,
		CurrentQuantity: updated.Quantity,
		Status:          status,
		Reason:          updated.Reason,
	}
	h.logger.Warn("stock below threshold detected",
		zap.String("tenant_id", alert.TenantID),
		zap.String("product_id", alert.ProductID),
		zap.String("variant_id", alert.VariantID),
		zap.Int("current_quantity", alert.CurrentQuantity),
		zap.String("status", string(status)),
	)

	if h.notifier != nil {
		if err := h.notifier.SendAlert(ctx, alert); err != nil {
			// Notification failure shouldn't fail the event handling
			h.logger.Error("failed to send stock alert notification",
				zap.String("product_id", alert.ProductID),
				zap.Error(err),
			)
		}
	}
	return nil
}

var _ shared.EventHandler = (*LowStockHandler)(nil)

// LoggingStockAlertNotifier is a simple notifier that logs alerts
type LoggingStockAlertNotifier struct {
	logger *zap.Logger
}

// NewLoggingStockAlertNotifier creates a new logging notifier
func NewLoggingStockAlertNotifier(logger *zap.Logger) *LoggingStockAlertNotifier {
	return &LoggingStockAlertNotifier{
		logger: logger,
	}
}

// SendAlert logs the stock alert
func (n *LoggingStockAlertNotifier) SendAlert(ctx context.Context, alert StockAlert) error {
	n.logger.Warn("STOCK ALERT",
		zap.String("status", string(alert.Status)),
		zap.String("product_id", alert.ProductID),
		zap.String("variant_id", alert.VariantID),
		zap.Int("current_qty", alert.CurrentQuantity),
	)
	return nil
}
