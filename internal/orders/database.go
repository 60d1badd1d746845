package orders

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/solswap/swap-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ListOrdersByWallet returns a wallet's orders newest first. Order ids are
// time-ordered (UUIDv7), so they double as the creation-order key.
func (d *Database) ListOrdersByWallet(wallet string, limit int) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("user_wallet = ?", wallet).
		Order("order_id DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus atomically persists a new status (and optional error text) on
// the order row and returns the updated row.
func (d *Database) UpdateStatus(orderID string, status types.OrderStatus, errText string) (*types.Order, error) {
	result := d.db.Model(&types.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"status":     status,
			"error":      errText,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, types.ErrNotFound
	}
	return d.GetOrder(orderID)
}

// UpdateExecution persists the execution outcome and the accompanying status
// in a single atomic row update.
func (d *Database) UpdateExecution(orderID, venue string, outputAmount float64, txHash string, status types.OrderStatus) (*types.Order, error) {
	result := d.db.Model(&types.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"selected_venue": venue,
			"output_amount":  outputAmount,
			"tx_hash":        txHash,
			"status":         status,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, types.ErrNotFound
	}
	return d.GetOrder(orderID)
}

// ClaimPending moves a PENDING order to ROUTING with a conditional update.
// At most one concurrent caller wins the row; everyone else gets
// ErrInvalidState (or ErrNotFound if the order does not exist at all).
func (d *Database) ClaimPending(orderID string) (*types.Order, error) {
	result := d.db.Model(&types.Order{}).
		Where("order_id = ? AND status = ?", orderID, types.StatusPending).
		Updates(map[string]interface{}{
			"status":     types.StatusRouting,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := d.GetOrder(orderID); err != nil {
			return nil, err
		}
		return nil, types.ErrInvalidState
	}
	return d.GetOrder(orderID)
}
