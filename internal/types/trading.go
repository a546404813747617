package types

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus is the canonical, broker-agnostic order state vocabulary.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusOpen      OrderStatus = "OPEN"
	StatusComplete  OrderStatus = "COMPLETE"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
)

// Terminal reports whether no further status transitions are permitted.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// OrderSide is the transaction direction, fixed at order creation.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type Order struct {
	gorm.Model         `json:"-"`
	UserID             uint        `json:"user_id"`
	BrokerConnectionID uint        `json:"broker_connection_id"`
	BrokerOrderID      string      `gorm:"index" json:"broker_order_id"` // empty until the broker accepts the order
	Symbol             string      `json:"symbol"`
	Exchange           string      `gorm:"default:NSE" json:"exchange"`
	Side               OrderSide   `json:"side"`
	OrderType          string      `json:"order_type"` // MARKET, LIMIT, SL, SL-M
	Product            string      `gorm:"default:MIS" json:"product"`
	Quantity           float64     `json:"quantity"`
	Price              float64     `json:"price"` // zero for market orders
	TriggerPrice       float64     `json:"trigger_price"`
	ExecutedPrice      float64     `json:"executed_price"`
	ExecutedQuantity   float64     `json:"executed_quantity"`
	Status             OrderStatus `gorm:"index;default:PENDING" json:"status"`
	StatusMessage      string      `gorm:"type:text" json:"status_message"`
	PnL                float64     `gorm:"column:pnl" json:"pnl"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

type BrokerConnection struct {
	gorm.Model           `json:"-"`
	UserID               uint       `gorm:"index" json:"user_id"`
	BrokerName           string     `json:"broker_name"`
	ConnectionName       string     `json:"connection_name"`
	APIKey               string     `json:"-"`
	APISecret            string     `json:"-"`
	AccessToken          string     `json:"-"`
	AccessTokenExpiresAt int64      `json:"access_token_expires_at"` // unix seconds, zero means no expiry recorded
	IsActive             bool       `gorm:"default:true" json:"is_active"`
	LastSyncAt           *time.Time `json:"last_sync_at"`
}

type Position struct {
	gorm.Model         `json:"-"`
	UserID             uint      `json:"user_id"`
	BrokerConnectionID uint      `gorm:"index" json:"broker_connection_id"`
	Symbol             string    `json:"symbol"`
	Exchange           string    `gorm:"default:NSE" json:"exchange"`
	Quantity           float64   `json:"quantity"`
	AveragePrice       float64   `json:"average_price"`
	CurrentPrice       float64   `json:"current_price"`
	PnL                float64   `gorm:"column:pnl" json:"pnl"`
	Product            string    `gorm:"default:MIS" json:"product"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type User struct {
	gorm.Model `json:"-"`
	Email      string    `gorm:"uniqueIndex" json:"email"`
	Name       string    `json:"name"`
	APIKey     string    `gorm:"uniqueIndex" json:"api_key"`
	APISecret  string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
