// Package state implements the persisted system-state snapshot (C13): a
// single Redis key holding the serialized SystemState, with TTL and an
// in-memory fallback when the store is unavailable. Grounded on the
// teacher's Redis-backed state idiom (connection pool, JSON snapshot,
// availability flag) generalized from per-position keys to the single
// `autobot:system_state` key spec.md names.
package state

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autobot/engine/internal/apperrors"
	"github.com/autobot/engine/internal/domain"
	"github.com/autobot/engine/internal/logging"
)

const stateKey = "autobot:system_state"

// persistedPosition and persistedState mirror domain types with
// JSON-friendly field names and ISO-8601 timestamps, matching the wire
// layout spec.md §6 specifies.
type persistedPosition struct {
	Symbol                    string    `json:"symbol"`
	Side                      string    `json:"side"`
	Quantity                  float64   `json:"quantity"`
	EntryPrice                float64   `json:"entry_price"`
	CurrentPrice              float64   `json:"current_price"`
	UnrealizedPnL             float64   `json:"unrealized_pnl"`
	StopLossPrice             float64   `json:"stop_loss_price"`
	InitialStopLoss           float64   `json:"initial_stop_loss"`
	TakeProfitPrice           float64   `json:"take_profit_price"`
	StopOrderID               string    `json:"stop_order_id"`
	HighestProfitPct          float64   `json:"highest_profit_pct"`
	BreakEvenTriggered        bool      `json:"break_even_triggered"`
	TrailingStopActivationPct float64   `json:"trailing_stop_activation_pct"`
	EntryTime                 time.Time `json:"entry_time"`
	RegimeAtEntry              string    `json:"regime_at_entry"`
	ADXAtEntry                 float64   `json:"adx_at_entry"`
	ADXPrev                    float64   `json:"adx_prev"`
	LastExitCheckTS            time.Time `json:"last_exit_check_ts"`
}

type persistedState struct {
	Status             string                       `json:"status"`
	Equity             float64                      `json:"equity"`
	PeakEquity         float64                      `json:"peak_equity"`
	CurrentDrawdownPct float64                      `json:"current_drawdown_pct"`
	DailyPnL           float64                      `json:"daily_pnl"`
	DailyPnLPct        float64                      `json:"daily_pnl_pct"`
	OpenPositions      map[string]persistedPosition `json:"open_positions"`
	SymbolRegimes      map[string]string            `json:"symbol_regimes"`
	TotalTrades        int                          `json:"total_trades"`
	WinningTrades      int                          `json:"winning_trades"`
	LosingTrades       int                          `json:"losing_trades"`
	StrategyWeights    map[string]float64           `json:"strategy_weights"`
	LastUpdate         time.Time                    `json:"last_update"`
}

func toPersisted(s *domain.SystemState) persistedState {
	positions := make(map[string]persistedPosition, len(s.OpenPositions))
	for sym, p := range s.OpenPositions {
		positions[sym] = persistedPosition{
			Symbol: p.Symbol, Side: string(p.Side), Quantity: p.Quantity,
			EntryPrice: p.EntryPrice, CurrentPrice: p.CurrentPrice, UnrealizedPnL: p.UnrealizedPnL,
			StopLossPrice: p.StopLossPrice, InitialStopLoss: p.InitialStopLoss, TakeProfitPrice: p.TakeProfitPrice,
			StopOrderID: p.StopOrderID, HighestProfitPct: p.HighestProfitPct, BreakEvenTriggered: p.BreakEvenTriggered,
			TrailingStopActivationPct: p.TrailingStopActivationPct, EntryTime: p.EntryTime,
			RegimeAtEntry: string(p.RegimeAtEntry), ADXAtEntry: p.ExitMetadata.ADXAtEntry,
			ADXPrev: p.ExitMetadata.ADXPrev, LastExitCheckTS: p.ExitMetadata.LastExitCheckTS,
		}
	}
	regimes := make(map[string]string, len(s.SymbolRegimes))
	for sym, r := range s.SymbolRegimes {
		regimes[sym] = string(r)
	}
	return persistedState{
		Status: string(s.Status), Equity: s.Equity, PeakEquity: s.PeakEquity,
		CurrentDrawdownPct: s.CurrentDrawdownPct, DailyPnL: s.DailyPnL, DailyPnLPct: s.DailyPnLPct,
		OpenPositions: positions, SymbolRegimes: regimes, TotalTrades: s.TotalTrades,
		WinningTrades: s.WinningTrades, LosingTrades: s.LosingTrades, StrategyWeights: s.StrategyWeights,
		LastUpdate: s.LastUpdate,
	}
}

func fromPersisted(p persistedState) *domain.SystemState {
	positions := make(map[string]*domain.Position, len(p.OpenPositions))
	for sym, pp := range p.OpenPositions {
		positions[sym] = &domain.Position{
			Symbol: pp.Symbol, Side: domain.Side(pp.Side), Quantity: pp.Quantity,
			EntryPrice: pp.EntryPrice, CurrentPrice: pp.CurrentPrice, UnrealizedPnL: pp.UnrealizedPnL,
			StopLossPrice: pp.StopLossPrice, InitialStopLoss: pp.InitialStopLoss, TakeProfitPrice: pp.TakeProfitPrice,
			StopOrderID: pp.StopOrderID, HighestProfitPct: pp.HighestProfitPct, BreakEvenTriggered: pp.BreakEvenTriggered,
			TrailingStopActivationPct: pp.TrailingStopActivationPct, EntryTime: pp.EntryTime,
			RegimeAtEntry: domain.Regime(pp.RegimeAtEntry),
			ExitMetadata: domain.ExitMetadata{
				ADXAtEntry: pp.ADXAtEntry, ADXPrev: pp.ADXPrev, RegimeAtEntry: domain.Regime(pp.RegimeAtEntry),
				LastExitCheckTS: pp.LastExitCheckTS,
			},
		}
	}
	regimes := make(map[string]domain.Regime, len(p.SymbolRegimes))
	for sym, r := range p.SymbolRegimes {
		regimes[sym] = domain.Regime(r)
	}
	weights := p.StrategyWeights
	if weights == nil {
		weights = make(map[string]float64)
	}
	return &domain.SystemState{
		Status: domain.SystemStatus(p.Status), Equity: p.Equity, PeakEquity: p.PeakEquity,
		CurrentDrawdownPct: p.CurrentDrawdownPct, DailyPnL: p.DailyPnL, DailyPnLPct: p.DailyPnLPct,
		OpenPositions: positions, SymbolRegimes: regimes, TotalTrades: p.TotalTrades,
		WinningTrades: p.WinningTrades, LosingTrades: p.LosingTrades, StrategyWeights: weights,
		LastUpdate: p.LastUpdate,
	}
}

// Store persists SystemState snapshots to Redis, falling back to an
// in-memory copy when the store is unreachable so the engine keeps
// operating under a StateStoreError rather than crashing.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	log    *logging.Logger

	mu        sync.RWMutex
	available bool
	fallback  *domain.SystemState
}

// Config configures the Redis connection.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// New creates a Store backed by a Redis connection pool.
func New(cfg Config) *Store {
	addr := cfg.Host
	if cfg.Port != 0 {
		addr = addrWithPort(cfg.Host, cfg.Port)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	return &Store{
		client:    client,
		ttl:       cfg.TTL,
		log:       logging.WithComponent("state"),
		available: true,
	}
}

func addrWithPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

// Load reads SystemState from Redis, retrying transient errors up to 3
// times with backoff before falling back to in-memory state. Returns nil,
// nil when no state has ever been persisted (a fresh start).
func (s *Store) Load(ctx context.Context) (*domain.SystemState, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		raw, err := s.client.Get(ctx, stateKey).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		if err == nil {
			var p persistedState
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, apperrors.Wrap(apperrors.StateStoreError, "state.Load", "corrupt state payload", err)
			}
			s.setAvailable(true)
			result := fromPersisted(p)
			s.setFallback(result)
			return result, nil
		}
		lastErr = err
		time.Sleep(backoff(attempt))
	}

	s.setAvailable(false)
	s.log.WithError(lastErr).Error("state store load failed after retries, using in-memory fallback")
	if fb := s.getFallback(); fb != nil {
		return fb, nil
	}
	return nil, apperrors.Wrap(apperrors.StateStoreError, "state.Load", "store unavailable and no fallback", lastErr)
}

// Save writes SystemState to Redis with the configured TTL. On persistent
// failure it logs critical and keeps the in-memory fallback current so the
// engine can continue operating.
func (s *Store) Save(ctx context.Context, state *domain.SystemState) error {
	s.setFallback(state)

	payload, err := json.Marshal(toPersisted(state))
	if err != nil {
		return apperrors.Wrap(apperrors.StateStoreError, "state.Save", "marshal failed", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := s.client.Set(ctx, stateKey, payload, s.ttl).Err(); err == nil {
			s.setAvailable(true)
			return nil
		} else {
			lastErr = err
			time.Sleep(backoff(attempt))
		}
	}

	s.setAvailable(false)
	s.log.WithError(lastErr).Error("state store save failed after retries, continuing with in-memory state only")
	return apperrors.Wrap(apperrors.StateStoreError, "state.Save", "store unavailable", lastErr)
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

func (s *Store) setAvailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = v
}

// Available reports whether the last operation reached Redis successfully.
func (s *Store) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

func (s *Store) setFallback(state *domain.SystemState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = state
}

func (s *Store) getFallback() *domain.SystemState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
