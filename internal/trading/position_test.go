package trading

import (
	"testing"

	"bibot/internal/binance"
)

func TestSideOrderMapping(t *testing.T) {
	if SideLong.OrderSide() != binance.SideBuy || SideLong.CloseOrderSide() != binance.SideSell {
		t.Error("LONG must open with BUY and close with SELL")
	}
	if SideShort.OrderSide() != binance.SideSell || SideShort.CloseOrderSide() != binance.SideBuy {
		t.Error("SHORT must open with SELL and close with BUY")
	}
}

func TestPositionValidate(t *testing.T) {
	valid := testPosition("100",
		OrderRef{ID: "101", Type: OrderTypeStopLoss},
		OrderRef{ID: "102", Type: OrderTypeTakeProfit})
	if err := valid.Validate(); err != nil {
		t.Errorf("valid position rejected: %v", err)
	}

	dup := testPosition("100",
		OrderRef{ID: "101", Type: OrderTypeStopLoss},
		OrderRef{ID: "102", Type: OrderTypeStopLoss})
	if err := dup.Validate(); err == nil {
		t.Error("duplicate stop-loss refs accepted")
	}

	badSide := testPosition("100")
	badSide.Side = "SIDEWAYS"
	if err := badSide.Validate(); err == nil {
		t.Error("invalid side accepted")
	}
}
