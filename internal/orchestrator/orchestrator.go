// Package orchestrator implements the event orchestrator (C12): the sole
// owner and mutator of SystemState, wiring stream ingest through the
// feature engine, regime detector, rule engine, veto chain, sizer, order
// manager and exit manager for every registered symbol. Grounded on the
// teacher's autopilot-loop idiom (per-symbol serialization, a single
// mutable account-state struct, startup reconciliation) generalized to
// the full C4-through-C13 pipeline spec.md describes.
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/autobot/engine/internal/binance"
	"github.com/autobot/engine/internal/circuit"
	"github.com/autobot/engine/internal/config"
	"github.com/autobot/engine/internal/domain"
	"github.com/autobot/engine/internal/events"
	"github.com/autobot/engine/internal/exit"
	"github.com/autobot/engine/internal/features"
	"github.com/autobot/engine/internal/ingest"
	"github.com/autobot/engine/internal/logging"
	"github.com/autobot/engine/internal/metrics"
	"github.com/autobot/engine/internal/notifier"
	"github.com/autobot/engine/internal/orders"
	"github.com/autobot/engine/internal/regime"
	"github.com/autobot/engine/internal/risk"
	"github.com/autobot/engine/internal/rules"
	"github.com/autobot/engine/internal/sizing"
	"github.com/autobot/engine/internal/state"
)

// symbolLock serializes the evaluate path for one symbol: signal and exit
// decisions for the same symbol are totally ordered; different symbols
// progress independently.
type symbolLock struct {
	mu             sync.Mutex
	lastBookTicker time.Time
	lastKlineClose time.Time
	lastPrice      float64
}

// Orchestrator holds references to every other component plus the current
// SystemState and is the only writer of it.
type Orchestrator struct {
	cfg config.TradingConfig

	client   binance.FuturesClient
	ingest   *ingest.Manager
	features *features.Engine
	regime   *regime.Detector
	rules    *rules.Engine
	vetoes   *risk.Chain
	orders   *orders.Manager
	exits    *exit.Manager
	store    *state.Store
	breaker  *circuit.Breaker
	notify   *notifier.Manager
	bus      *events.Bus
	log      *logging.Logger
	metrics  *metrics.Registry

	stateMu sync.RWMutex
	state   *domain.SystemState

	locksMu sync.Mutex
	locks   map[string]*symbolLock

	minBookTickerInterval time.Duration
	minKlineCloseInterval time.Duration

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// Deps bundles every collaborator the orchestrator wires together. Built by
// the CLI entry point from config.Config.
type Deps struct {
	Config      config.TradingConfig
	Client      binance.FuturesClient
	Ingest      *ingest.Manager
	Features    *features.Engine
	Regime      *regime.Detector
	Rules       *rules.Engine
	Vetoes      *risk.Chain
	Orders      *orders.Manager
	Exits       *exit.Manager
	Store       *state.Store
	Breaker     *circuit.Breaker
	Notify      *notifier.Manager
	Bus         *events.Bus
	Metrics     *metrics.Registry
}

// New constructs an orchestrator from its dependencies.
func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		cfg:                   d.Config,
		client:                d.Client,
		ingest:                d.Ingest,
		features:              d.Features,
		regime:                d.Regime,
		rules:                 d.Rules,
		vetoes:                d.Vetoes,
		orders:                d.Orders,
		exits:                 d.Exits,
		store:                 d.Store,
		breaker:               d.Breaker,
		notify:                d.Notify,
		bus:                   d.Bus,
		metrics:               d.Metrics,
		log:                   logging.WithComponent("orchestrator"),
		locks:                 make(map[string]*symbolLock),
		minBookTickerInterval: 30 * time.Second,
		minKlineCloseInterval: 1 * time.Second,
		shutdown:              make(chan struct{}),
	}
	o.breaker.OnSafeMode(func(reason string) {
		o.notify.Send(notifier.Critical("Engine entered SAFE_MODE", reason, nil))
		o.bus.Publish(events.Event{Type: events.EventSafeModeEntered, Data: map[string]interface{}{"reason": reason}})
	})
	return o
}

func (o *Orchestrator) symbolLockFor(symbol string) *symbolLock {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.locks[symbol]
	if !ok {
		l = &symbolLock{}
		o.locks[symbol] = l
	}
	return l
}

// Start performs startup reconciliation, wires ingest callbacks, and begins
// the streaming loop. Blocks until ctx is cancelled, then shuts down
// gracefully.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.reconcileStartup(ctx); err != nil {
		return fmt.Errorf("orchestrator: startup reconciliation failed: %w", err)
	}

	o.ingest.OnEvent(o.handleEvent)
	o.ingest.Start()

	o.notify.Send(notifier.Info("Engine started", fmt.Sprintf("tracking %d symbols", len(o.cfg.Symbols)), nil))

	<-ctx.Done()
	return o.shutdownGracefully()
}

// reconcileStartup loads persisted SystemState, reconciles it against live
// exchange positions, and seeds the feature engine's history per symbol.
func (o *Orchestrator) reconcileStartup(ctx context.Context) error {
	loaded, err := o.store.Load(ctx)
	if err != nil {
		o.log.WithError(err).Error("failed to load persisted state, starting fresh")
	}
	if loaded == nil {
		loaded = domain.NewSystemState(0)
	}
	o.stateMu.Lock()
	o.state = loaded
	o.stateMu.Unlock()

	live, err := o.orders.ReconcilePositions(o.cfg.Symbols)
	if err != nil {
		o.log.WithError(err).Warn("failed to reconcile exchange positions, continuing with local state only")
	} else {
		o.reconcilePositions(live)
	}

	for _, symbol := range o.cfg.Symbols {
		bars, err := o.client.GetFuturesKlines(symbol, o.cfg.Timeframe, 500)
		if err != nil {
			o.log.WithField("symbol", symbol).WithError(err).Warn("failed to seed history")
			continue
		}
		o.features.Seed(symbol, toOHLCVBars(bars))
	}

	return nil
}

func toOHLCVBars(klines []binance.Kline) []domain.OHLCVBar {
	bars := make([]domain.OHLCVBar, len(klines))
	for i, k := range klines {
		bars[i] = domain.OHLCVBar{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     k.Open,
			High:     k.High,
			Low:      k.Low,
			Close:    k.Close,
			Volume:   k.Volume,
			Closed:   true,
		}
	}
	return bars
}

// reconcilePositions adds exchange positions missing locally and removes
// local positions the exchange no longer reports.
func (o *Orchestrator) reconcilePositions(live []binance.FuturesPosition) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	onExchange := make(map[string]bool, len(live))
	for _, p := range live {
		onExchange[p.Symbol] = true
		if _, exists := o.state.OpenPositions[p.Symbol]; exists {
			continue
		}
		side := domain.SideLong
		qty := p.PositionAmt
		if qty < 0 {
			side = domain.SideShort
			qty = -qty
		}
		o.state.OpenPositions[p.Symbol] = &domain.Position{
			Symbol:       p.Symbol,
			Side:         side,
			Quantity:     qty,
			EntryPrice:   p.EntryPrice,
			CurrentPrice: p.MarkPrice,
			EntryTime:    time.Now(),
		}
	}
	for symbol := range o.state.OpenPositions {
		if !onExchange[symbol] {
			delete(o.state.OpenPositions, symbol)
		}
	}
}

// handleEvent is the registered callback against C4 for both kline and
// book-ticker events, each routed to its own throttled trigger.
func (o *Orchestrator) handleEvent(e ingest.MarketDataEvent) {
	lock := o.symbolLockFor(e.Symbol)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	switch e.Kind {
	case ingest.KindBookTicker:
		lock.lastPrice = e.MidPrice()
		if time.Since(lock.lastBookTicker) < o.minBookTickerInterval {
			return
		}
		lock.lastBookTicker = time.Now()
		o.evaluate(e.Symbol, lock.lastPrice)

	case ingest.KindKline:
		snap := o.features.OnBar(e.Symbol, domain.OHLCVBar{
			OpenTime: e.ExchangeTS,
			Open:     e.Open,
			High:     e.High,
			Low:      e.Low,
			Close:    e.Close,
			Volume:   e.Volume,
			Closed:   e.IsClosed,
		})
		if !e.IsClosed {
			return
		}
		if time.Since(lock.lastKlineClose) < o.minKlineCloseInterval {
			return
		}
		lock.lastKlineClose = time.Now()
		lock.lastPrice = snap.Close
		o.evaluate(e.Symbol, snap.Close)
	}
}

// evaluate runs the full decision pipeline for one symbol: new-signal path
// when flat, position-management path when a Position is already open. A
// held position does not exempt the symbol from C7: an opposite-side
// signal first closes the existing position, then is evaluated as a fresh
// entry, per the data model's "a new opposite-side proposal first closes
// the existing one" rule. Must be called with the symbol's lock held.
func (o *Orchestrator) evaluate(symbol string, price float64) {
	position := o.hasPosition(symbol)
	if !o.breaker.CanOpenPositions() && position == nil {
		return
	}

	snap := o.features.Snapshot(symbol)
	if !snap.Ready {
		return
	}

	regimeNow, _ := o.regime.Classify(symbol, snap)
	o.setSymbolRegime(symbol, regimeNow)

	if position != nil && !o.breaker.CanOpenPositions() {
		o.manageOpenPosition(symbol, position, snap, regimeNow, price)
		return
	}

	weights := o.strategyWeights()
	signal := o.rules.Evaluate(symbol, snap, regimeNow, weights).Signal
	if o.metrics != nil {
		o.metrics.SignalsEvaluated.WithLabelValues(string(signal.Action)).Inc()
	}

	switch {
	case position == nil:
		o.evaluateNewSignal(symbol, signal, snap, regimeNow, price, nil)
	case signal.Action == opposingAction(position.Side):
		o.evaluateNewSignal(symbol, signal, snap, regimeNow, price, position)
	default:
		o.manageOpenPosition(symbol, position, snap, regimeNow, price)
	}
}

// opposingAction returns the PROPOSE_* action that opposes an open
// position of the given side.
func opposingAction(side domain.Side) domain.SignalAction {
	if side.Opposite() == domain.SideLong {
		return domain.ActionProposeLong
	}
	return domain.ActionProposeShort
}

func (o *Orchestrator) hasPosition(symbol string) *domain.Position {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state.OpenPositions[symbol]
}

func (o *Orchestrator) setSymbolRegime(symbol string, r domain.Regime) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.state.SymbolRegimes[symbol] = r
}

// evaluateNewSignal runs C8 -> C9 -> C10 for signal and, on a filled entry,
// installs the new Position. existing is non-nil only for an opposite-side
// flip: the held position is closed only after the veto chain approves the
// replacement entry, since risk.Chain.maxPositions exempts a symbol that
// already holds a position from the open-count ceiling — closing first
// would lose that exemption for no reason.
func (o *Orchestrator) evaluateNewSignal(symbol string, signal domain.TradeSignal, snap domain.FeatureSnapshot, regimeNow domain.Regime, price float64, existing *domain.Position) {
	if signal.Action != domain.ActionProposeLong && signal.Action != domain.ActionProposeShort {
		return
	}

	equity := o.currentEquity()
	sized := sizing.Size(sizing.Params{
		RiskPerTradePct: o.cfg.RiskPerTradePct / 100,
		ATRMultiplier:   o.cfg.StopLossATRMultiplier,
		MaxPositionUSDT: o.cfg.MaxPositionSizeUSDT,
		MinQuantityUSDT: o.cfg.MinQuantityUSDT,
	}, equity, price, snap.ATR)
	if !sized.Valid {
		return
	}

	vetoState := o.snapshotState()
	veto := o.vetoes.Evaluate(signal, snap, sized.Quantity, price, vetoState)
	if !veto.Approved {
		if o.metrics != nil {
			o.metrics.VetoesTotal.WithLabelValues(string(veto.Stage)).Inc()
		}
		o.bus.Publish(events.Event{Type: events.EventSignalVetoed, Data: map[string]interface{}{
			"symbol": symbol, "stage": string(veto.Stage), "reason": veto.Reason,
		}})
		o.notify.Send(notifier.Warning("Signal vetoed", fmt.Sprintf("%s rejected at %s: %s", symbol, veto.Stage, veto.Reason), nil))
		return
	}

	if existing != nil {
		if !o.closeForFlip(symbol, existing, price) {
			return
		}
	}

	stopDistance := snap.ATR * o.cfg.StopLossATRMultiplier
	if stopDistance <= 0 {
		stopDistance = price * 0.005
	}

	entry, stop := o.orders.SubmitEntry(signal, sized.Quantity, price, o.cfg.Leverage, stopDistance)
	if !entry.Success {
		o.notify.Send(notifier.Warning("Entry order failed", entry.Error.Error(), nil))
		return
	}

	side := domain.SideLong
	stopPrice := price - stopDistance
	if signal.Action == domain.ActionProposeShort {
		side = domain.SideShort
		stopPrice = price + stopDistance
	}

	pos := &domain.Position{
		Symbol:          symbol,
		Side:            side,
		Quantity:        sized.Quantity,
		EntryPrice:      price,
		CurrentPrice:    price,
		StopLossPrice:   stopPrice,
		InitialStopLoss: stopPrice,
		EntryTime:       time.Now(),
		RegimeAtEntry:   regimeNow,
		ExitMetadata:    domain.ExitMetadata{ADXAtEntry: snap.ADX, ADXPrev: snap.ADX, RegimeAtEntry: regimeNow},
	}
	if stop.Success {
		pos.StopOrderID = strconv.FormatInt(stop.AlgoID, 10)
	}

	o.installPosition(pos)
	o.bus.Publish(events.Event{Type: events.EventPositionOpened, Data: map[string]interface{}{"symbol": symbol, "side": string(side)}})
	o.persist()
}

// closeForFlip market-closes position ahead of an approved opposite-side
// entry. ClosePosition already cancels the position's algo orders before
// closing; SubmitEntry cancels any stragglers before placing the new
// entry. Returns false if the close failed, in which case the caller must
// not submit the new entry and the existing position is left in place.
func (o *Orchestrator) closeForFlip(symbol string, position *domain.Position, price float64) bool {
	o.stateMu.Lock()
	position.CurrentPrice = price
	o.stateMu.Unlock()

	closeResult := o.orders.ClosePosition(symbol, position.Side, position.Quantity)
	if !closeResult.Success {
		o.notify.Send(notifier.Warning("Flip close order failed", closeResult.Error.Error(), nil))
		return false
	}

	o.removePosition(symbol, position)
	if o.metrics != nil {
		o.metrics.ExitsTotal.WithLabelValues("opposite_side_flip").Inc()
	}
	o.bus.Publish(events.Event{Type: events.EventExitTriggered, Data: map[string]interface{}{
		"symbol": symbol, "reason": "opposite_side_flip", "urgency": "high",
	}})
	o.persist()
	return true
}

// manageOpenPosition updates price/PnL, ratchets the trailing stop, and
// consults the exit manager.
func (o *Orchestrator) manageOpenPosition(symbol string, position *domain.Position, snap domain.FeatureSnapshot, regimeNow domain.Regime, price float64) {
	o.stateMu.Lock()
	position.CurrentPrice = price
	o.stateMu.Unlock()

	trailing := exit.UpdateTrailingStop(position, o.cfg.BreakEvenPct, o.cfg.TrailingStopRate)
	if trailing.Moved {
		previousAlgoID, _ := strconv.ParseInt(position.StopOrderID, 10, 64)
		result := o.orders.UpdateStopLoss(symbol, position.Side, previousAlgoID, trailing.NewStopPrice)
		if result.Success {
			o.stateMu.Lock()
			position.StopLossPrice = trailing.NewStopPrice
			position.StopOrderID = strconv.FormatInt(result.AlgoID, 10)
			o.stateMu.Unlock()
		}
	}

	decision := o.exits.Evaluate(*position, snap, regimeNow, snap.Timestamp)
	if decision.Hold {
		o.persist()
		return
	}

	closeResult := o.orders.ClosePosition(symbol, position.Side, position.Quantity)
	if !closeResult.Success {
		o.notify.Send(notifier.Warning("Close order failed", closeResult.Error.Error(), nil))
		return
	}

	o.removePosition(symbol, position)
	if o.metrics != nil {
		o.metrics.ExitsTotal.WithLabelValues(string(decision.Reason)).Inc()
	}
	o.bus.Publish(events.Event{Type: events.EventExitTriggered, Data: map[string]interface{}{
		"symbol": symbol, "reason": string(decision.Reason), "urgency": string(decision.Urgency),
	}})
	o.persist()
}

func (o *Orchestrator) installPosition(p *domain.Position) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.state.OpenPositions[p.Symbol] = p
	o.state.TotalTrades++
}

func (o *Orchestrator) removePosition(symbol string, p *domain.Position) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if p.RMultiple() > 0 {
		o.state.WinningTrades++
	} else {
		o.state.LosingTrades++
	}
	o.state.Equity += p.UnrealizedPnL
	o.state.RecomputeDrawdown()
	delete(o.state.OpenPositions, symbol)
}

// checkInvariants defends the SystemState invariants spec §8 requires to
// hold for all runs: peak_equity never falls below equity, and
// current_drawdown_pct stays in [0, 100]. RecomputeDrawdown is supposed to
// maintain both on every call; a violation here means some path mutated
// Equity or PeakEquity without going through it, which is a programmer
// bug, not a recoverable trading condition, so it escalates straight to
// SAFE_MODE rather than being silently clamped. Must be called with
// stateMu held.
func (o *Orchestrator) checkInvariants() {
	if o.state.PeakEquity < o.state.Equity {
		o.breaker.TripSafeMode(fmt.Sprintf("critical invariant breach: peak_equity (%.8f) < equity (%.8f)", o.state.PeakEquity, o.state.Equity))
		return
	}
	if o.state.CurrentDrawdownPct < 0 || o.state.CurrentDrawdownPct > 100 {
		o.breaker.TripSafeMode(fmt.Sprintf("critical invariant breach: current_drawdown_pct %.4f out of [0, 100]", o.state.CurrentDrawdownPct))
	}
}

func (o *Orchestrator) currentEquity() float64 {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state.Equity
}

func (o *Orchestrator) strategyWeights() map[string]float64 {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	weights := make(map[string]float64, len(o.state.StrategyWeights))
	for k, v := range o.state.StrategyWeights {
		weights[k] = v
	}
	return weights
}

func (o *Orchestrator) snapshotState() *domain.SystemState {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	copyState := *o.state
	return &copyState
}

func (o *Orchestrator) persist() {
	o.stateMu.Lock()
	o.state.LastUpdate = time.Now()
	o.checkInvariants()
	snapshot := *o.state
	o.stateMu.Unlock()

	if o.metrics != nil {
		o.metrics.Equity.Set(snapshot.Equity)
		o.metrics.DrawdownPct.Set(snapshot.CurrentDrawdownPct)
		o.metrics.OpenPositions.Set(float64(len(snapshot.OpenPositions)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.Save(ctx, &snapshot); err != nil {
		o.log.WithError(err).Error("failed to persist system state")
	}
}

// shutdownGracefully stops ingest, flushes state, and notifies.
func (o *Orchestrator) shutdownGracefully() error {
	o.breaker.Halt()
	o.ingest.Stop()
	o.persist()
	o.notify.Send(notifier.Info("Engine stopped", "graceful shutdown complete", nil))
	close(o.shutdown)
	o.wg.Wait()
	return nil
}
