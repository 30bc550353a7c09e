// Package trading implements the position lifecycle: opening bracketed
// positions, tracking them durably, and reconciling them against the
// exchange.
package trading

import (
	"fmt"
	"time"

	"bibot/internal/binance"
)

// Side is the direction of a position
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// OrderSide maps the position direction to the exchange side of the opening
// market order.
func (s Side) OrderSide() string {
	if s == SideShort {
		return binance.SideSell
	}
	return binance.SideBuy
}

// CloseOrderSide maps the position direction to the exchange side of its
// reduce-only bracket orders.
func (s Side) CloseOrderSide() string {
	if s == SideShort {
		return binance.SideBuy
	}
	return binance.SideSell
}

// Valid reports whether s is a known side
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// OrderType is the semantic role of a bracket order
type OrderType string

const (
	OrderTypeStopLoss   OrderType = "stop_loss"
	OrderTypeTakeProfit OrderType = "take_profit"
)

// OrderRef pairs an exchange order id with its role on the position
type OrderRef struct {
	ID   string    `json:"id"`
	Type OrderType `json:"type"`
}

// Position is one open directional exposure together with its bracket
// orders. Exchange order ids are carried as opaque strings.
type Position struct {
	MainOrderID string     `json:"main_order_id"`
	EntryPrice  float64    `json:"entry_price"`
	Side        Side       `json:"side"`
	Quantity    float64    `json:"quantity"`
	Orders      []OrderRef `json:"orders"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Validate checks the structural invariants of a position record, used when
// loading persisted state of unknown provenance.
func (p *Position) Validate() error {
	if p.MainOrderID == "" {
		return fmt.Errorf("missing main_order_id")
	}
	if !p.Side.Valid() {
		return fmt.Errorf("invalid side %q", p.Side)
	}
	if p.EntryPrice <= 0 {
		return fmt.Errorf("invalid entry_price %v", p.EntryPrice)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("invalid quantity %v", p.Quantity)
	}
	seen := make(map[OrderType]bool, 2)
	for _, ref := range p.Orders {
		if ref.ID == "" {
			return fmt.Errorf("bracket order with empty id")
		}
		if ref.Type != OrderTypeStopLoss && ref.Type != OrderTypeTakeProfit {
			return fmt.Errorf("invalid bracket order type %q", ref.Type)
		}
		if seen[ref.Type] {
			return fmt.Errorf("duplicate %s order", ref.Type)
		}
		seen[ref.Type] = true
	}
	return nil
}
