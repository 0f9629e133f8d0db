// Package orders implements the order manager (C10): entry submission,
// protective algo orders (stop/TP/trailing), cancellation, position close,
// and exchange reconciliation. Grounded on the teacher's managed-order
// bookkeeping idiom and the futures client's algo-order surface; every
// network call passes through the rate limiter (C2) already wired into
// the futures client.
package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/autobot/engine/internal/apperrors"
	"github.com/autobot/engine/internal/audit"
	"github.com/autobot/engine/internal/binance"
	"github.com/autobot/engine/internal/domain"
	"github.com/autobot/engine/internal/logging"
)

// Result is the discriminated outcome of a submit/cancel/close operation.
// On success the order identifiers are set; on failure Error is populated.
type Result struct {
	Success       bool
	ClientOrderID string
	OrderID       int64
	AlgoID        int64
	Error         *apperrors.Error
}

func failure(op, symbol, message string, cause error) Result {
	return Result{Success: false, Error: apperrors.Wrap(apperrors.ExchangeReject, op, message, cause).WithSymbol(symbol)}
}

// Manager submits and supervises orders for the engine's configured
// symbols.
type Manager struct {
	client    binance.FuturesClient
	dryRun    bool
	leveraged map[string]bool
	log       *logging.Logger
	audit     *audit.Log
}

// New creates an order manager. When dryRun is true, every network call is
// short-circuited and a synthetic DRY_ identifier is returned instead.
func New(client binance.FuturesClient, dryRun bool) *Manager {
	return &Manager{
		client:    client,
		dryRun:    dryRun,
		leveraged: make(map[string]bool),
		log:       logging.WithComponent("orders"),
		audit:     audit.New(),
	}
}

func newClientOrderID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:12])
}

func (m *Manager) dryRunResult(prefix string) Result {
	return Result{Success: true, ClientOrderID: "DRY_" + newClientOrderID(prefix)}
}

// SubmitEntry places a market entry order for signal at quantity, setting
// leverage once per symbol and cancelling any stale open orders for the
// symbol first, then places a protective stop at price ∓ stopDistance.
// Available margin is not checked. A failure before the entry is placed
// returns a failed entry Result and places nothing; if the entry is placed
// but the stop fails, the entry stays open and the second Result carries
// the stop's error.
func (m *Manager) SubmitEntry(signal domain.TradeSignal, quantity, price float64, leverage int, stopDistance float64) (Result, Result) {
	symbol := signal.Symbol

	if m.dryRun {
		return m.dryRunResult("entry"), m.dryRunResult("stop")
	}

	if !m.leveraged[symbol] {
		if _, err := m.client.SetLeverage(symbol, leverage); err != nil {
			return failure("orders.SubmitEntry", symbol, "set leverage failed", err), Result{}
		}
		m.leveraged[symbol] = true
	}

	if err := m.client.CancelAllFuturesOrders(symbol); err != nil {
		m.log.WithField("symbol", symbol).WithError(err).Warn("cancel existing orders before entry failed, continuing")
	}

	side := "BUY"
	positionSide := binance.PositionSideLong
	if signal.Action == domain.ActionProposeShort {
		side = "SELL"
		positionSide = binance.PositionSideShort
	}

	clientOrderID := newClientOrderID("entry")
	resp, err := m.client.PlaceFuturesOrder(binance.FuturesOrderParams{
		Symbol:           symbol,
		Side:             side,
		PositionSide:     positionSide,
		Type:             binance.FuturesOrderTypeMarket,
		Quantity:         quantity,
		NewClientOrderId: clientOrderID,
	})
	if err != nil {
		return failure("orders.SubmitEntry", symbol, "place entry order failed", err), Result{}
	}

	entryResult := Result{Success: true, ClientOrderID: clientOrderID, OrderID: resp.OrderId}
	m.audit.Record(audit.Event{Symbol: symbol, OrderRole: "entry", Type: audit.EventPlaced, Price: price})

	stopSide := "SELL"
	if side == "SELL" {
		stopSide = "BUY"
	}
	stopPrice := price - stopDistance
	if side == "SELL" {
		stopPrice = price + stopDistance
	}

	stopResult := m.submitAlgoOrder(symbol, stopSide, positionSide, binance.FuturesOrderTypeStopMarket, stopPrice, "stop")
	return entryResult, stopResult
}

func (m *Manager) submitAlgoOrder(symbol, side string, positionSide binance.PositionSide, orderType binance.FuturesOrderType, triggerPrice float64, prefix string) Result {
	if m.dryRun {
		return m.dryRunResult(prefix)
	}

	clientAlgoID := newClientOrderID(prefix)
	resp, err := m.client.PlaceAlgoOrder(binance.AlgoOrderParams{
		Symbol:        symbol,
		Side:          side,
		PositionSide:  positionSide,
		Type:          orderType,
		TriggerPrice:  triggerPrice,
		WorkingType:   binance.WorkingTypeContractPrice,
		ClosePosition: true,
		ClientAlgoId:  clientAlgoID,
	})
	if err != nil {
		return failure("orders.submitAlgoOrder", symbol, prefix+" order failed", err)
	}
	m.audit.Record(audit.Event{Symbol: symbol, OrderRole: prefix, Type: audit.EventPlaced, Price: triggerPrice, AlgoID: resp.AlgoId})
	return Result{Success: true, ClientOrderID: clientAlgoID, AlgoID: resp.AlgoId}
}

// SubmitTrailingStop places a TRAILING_STOP_MARKET algo order activated at
// activationPrice with callbackRate percent.
func (m *Manager) SubmitTrailingStop(symbol string, side domain.Side, activationPrice, callbackRate float64) Result {
	if m.dryRun {
		return m.dryRunResult("trail")
	}
	orderSide, positionSide := closeSideFor(side)
	clientAlgoID := newClientOrderID("trail")
	resp, err := m.client.PlaceAlgoOrder(binance.AlgoOrderParams{
		Symbol:        symbol,
		Side:          orderSide,
		PositionSide:  positionSide,
		Type:          binance.FuturesOrderTypeTrailingStop,
		ActivatePrice: activationPrice,
		CallbackRate:  callbackRate,
		WorkingType:   binance.WorkingTypeContractPrice,
		ClosePosition: true,
		ClientAlgoId:  clientAlgoID,
	})
	if err != nil {
		return failure("orders.SubmitTrailingStop", symbol, "trailing stop failed", err)
	}
	return Result{Success: true, ClientOrderID: clientAlgoID, AlgoID: resp.AlgoId}
}

// UpdateStopLoss cancels the algo order identified by previousAlgoID and
// places a new stop at newStopPrice.
func (m *Manager) UpdateStopLoss(symbol string, side domain.Side, previousAlgoID int64, newStopPrice float64) Result {
	if m.dryRun {
		return m.dryRunResult("stop")
	}
	if previousAlgoID != 0 {
		if err := m.client.CancelAlgoOrder(symbol, previousAlgoID); err != nil {
			m.log.WithField("symbol", symbol).WithError(err).Warn("cancel previous stop failed, placing replacement anyway")
		} else {
			m.audit.Record(audit.Event{Symbol: symbol, OrderRole: "stop", Type: audit.EventCancelled, AlgoID: previousAlgoID})
		}
	}
	orderSide, positionSide := closeSideFor(side)
	result := m.submitAlgoOrder(symbol, orderSide, positionSide, binance.FuturesOrderTypeStopMarket, newStopPrice, "stop")
	if result.Success {
		m.audit.Record(audit.Event{Symbol: symbol, OrderRole: "stop", Type: audit.EventModified, Price: newStopPrice, AlgoID: result.AlgoID})
	}
	return result
}

// ClosePosition cancels all algo orders for symbol, then market-closes the
// position with the opposite side.
func (m *Manager) ClosePosition(symbol string, side domain.Side, quantity float64) Result {
	if m.dryRun {
		return m.dryRunResult("close")
	}

	if err := m.client.CancelAllAlgoOrders(symbol); err != nil {
		m.log.WithField("symbol", symbol).WithError(err).Warn("cancel algo orders before close failed, continuing")
	}

	orderSide, positionSide := closeSideFor(side)
	clientOrderID := newClientOrderID("close")
	resp, err := m.client.PlaceFuturesOrder(binance.FuturesOrderParams{
		Symbol:           symbol,
		Side:             orderSide,
		PositionSide:     positionSide,
		Type:             binance.FuturesOrderTypeMarket,
		Quantity:         quantity,
		ReduceOnly:       true,
		NewClientOrderId: clientOrderID,
	})
	if err != nil {
		return failure("orders.ClosePosition", symbol, "close order failed", err)
	}
	m.audit.Record(audit.Event{Symbol: symbol, OrderRole: "close", Type: audit.EventClosed, Price: 0})
	return Result{Success: true, ClientOrderID: clientOrderID, OrderID: resp.OrderId}
}

// closeSideFor returns the (order side, positionSide) pair that closes a
// position of the given side.
func closeSideFor(side domain.Side) (string, binance.PositionSide) {
	if side == domain.SideLong {
		return "SELL", binance.PositionSideLong
	}
	return "BUY", binance.PositionSideShort
}

// ReconcilePositions fetches the exchange's live positions for symbols and
// returns those with a non-zero amount, for startup reconciliation against
// local SystemState.
func (m *Manager) ReconcilePositions(symbols []string) ([]binance.FuturesPosition, error) {
	if m.dryRun {
		return nil, nil
	}
	all, err := m.client.GetPositions()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.TransientNetwork, "orders.ReconcilePositions", "list positions failed", err)
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	var live []binance.FuturesPosition
	for _, p := range all {
		if p.PositionAmt == 0 {
			continue
		}
		if len(wanted) > 0 && !wanted[p.Symbol] {
			continue
		}
		live = append(live, p)
	}
	return live, nil
}

// CallTimeout is a per-call REST timeout exported for callers; no Manager
// method applies it.
const CallTimeout = 30 * time.Second
