package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tonswap/backend/internal/chains"
	"github.com/tonswap/backend/internal/events"
	"github.com/tonswap/backend/internal/repositories"
	"go.uber.org/zap"
)

// Config tunes the monitor's loops.
type Config struct {
	// PollInterval is the per-chain event poll cadence.
	PollInterval time.Duration

	// ScanInterval is the (longer) timeout-scanner cadence.
	ScanInterval time.Duration

	// ScanBatch bounds how many expired orders one scan picks up.
	ScanBatch int
}

func (c *Config) fill() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = time.Minute
	}
	if c.ScanBatch <= 0 {
		c.ScanBatch = 100
	}
}

// Monitor polls every chain for escrow events, annotates the shared escrow
// table with observed transaction hashes, and notifies resolvers. It never
// writes escrow status — that is the engine's to mutate. A separate scanner
// loop flags orders whose cancellation window elapsed without settlement.
type Monitor struct {
	cfg       Config
	orders    repositories.OrderRepository
	escrows   repositories.EscrowRepository
	adapters  map[string]chains.Adapter
	publisher events.Publisher
	cursors   CursorStore
	log       *zap.Logger

	// handled suppresses events seen through both the factory view and a
	// per-contract view within one process lifetime. Losing it on restart
	// only re-publishes, and the stream is at-least-once anyway.
	mu      sync.Mutex
	handled map[string]struct{}
}

func NewMonitor(
	cfg Config,
	orders repositories.OrderRepository,
	escrows repositories.EscrowRepository,
	adapters map[string]chains.Adapter,
	publisher events.Publisher,
	cursors CursorStore,
	log *zap.Logger,
) *Monitor {
	cfg.fill()
	return &Monitor{
		cfg:       cfg,
		orders:    orders,
		escrows:   escrows,
		adapters:  adapters,
		publisher: publisher,
		cursors:   cursors,
		log:       log,
		handled:   make(map[string]struct{}),
	}
}

// Run starts one poller per chain plus the timeout scanner and blocks until
// the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	for network, adapter := range m.adapters {
		go m.runPoller(ctx, network, adapter)
	}
	go m.runTimeoutScanner(ctx)
	<-ctx.Done()
}

func (m *Monitor) runPoller(ctx context.Context, network string, adapter chains.Adapter) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	m.log.Info("chain poller started", zap.String("chain", network))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.PollOnce(ctx, network, adapter); err != nil {
				m.log.Error("poll cycle failed", zap.String("chain", network), zap.Error(err))
			}
		}
	}
}

// PollOnce runs a single poll cycle for one chain: the factory account for
// deployments, then every tracked non-terminal escrow contract. On TON a
// child contract's transactions never appear in the factory's history, so
// the factory stream alone would miss locks, withdrawals and refunds.
func (m *Monitor) PollOnce(ctx context.Context, network string, adapter chains.Adapter) error {
	if err := m.pollAccount(ctx, network, adapter, ""); err != nil {
		return err
	}

	active, err := m.escrows.ListActive(ctx, network)
	if err != nil {
		return err
	}
	for _, esc := range active {
		if err := m.pollAccount(ctx, network, adapter, esc.ContractAddress); err != nil {
			m.log.Error("escrow contract poll failed",
				zap.String("chain", network),
				zap.String("contract", esc.ContractAddress),
				zap.Error(err),
			)
		}
	}
	return nil
}

// pollAccount fetches one account's events past its own cursor and processes
// them. Cursors are per account: on TON the logical-time cursor of one
// contract says nothing about another's.
func (m *Monitor) pollAccount(ctx context.Context, network string, adapter chains.Adapter, contract string) error {
	key := network
	if contract != "" {
		key = network + ":" + contract
	}
	cursor := m.cursors.Load(ctx, key)

	evs, err := adapter.GetRecentEvents(ctx, contract, cursor)
	if err != nil {
		return err
	}
	if len(evs) == 0 {
		return nil
	}

	for _, ev := range evs {
		m.handleEvent(ctx, network, ev)
		if ev.Cursor > cursor {
			cursor = ev.Cursor
		}
	}
	m.cursors.Save(ctx, key, cursor)
	return nil
}

// alreadyHandled marks an event and reports whether it was seen before.
func (m *Monitor) alreadyHandled(network string, ev chains.ChainEvent) bool {
	key := network + "|" + ev.Contract + "|" + ev.Type + "|" + ev.TxRef
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handled[key]; ok {
		return true
	}
	// Entries are only needed until every view's cursor passes the event;
	// resetting at the cap just risks a duplicate publish, which consumers
	// dedup by key.
	if len(m.handled) > 8192 {
		m.handled = make(map[string]struct{})
	}
	m.handled[key] = struct{}{}
	return false
}

func (m *Monitor) handleEvent(ctx context.Context, network string, ev chains.ChainEvent) {
	if m.alreadyHandled(network, ev) {
		return
	}
	if ev.Type == chains.EventUnknown {
		m.log.Debug("skipping unknown escrow event",
			zap.String("chain", network),
			zap.String("contract", ev.Contract),
			zap.Uint32("opcode", ev.Opcode),
		)
		return
	}

	esc, err := m.escrows.GetByAddress(ctx, network, ev.Contract)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			m.log.Debug("event for untracked contract",
				zap.String("chain", network),
				zap.String("contract", ev.Contract),
				zap.String("type", ev.Type),
			)
			return
		}
		m.log.Error("escrow lookup failed", zap.Error(err))
		return
	}

	if ev.TxRef != "" {
		if err := m.escrows.AnnotateTx(ctx, esc.ID, ev.TxRef); err != nil {
			m.log.Warn("failed to annotate tx", zap.String("escrow_id", esc.ID.String()), zap.Error(err))
		}
	}

	var notifType string
	switch ev.Type {
	case chains.EventEscrowCreated, chains.EventEscrowLocked:
		notifType = events.TypeEscrowCreated
	case chains.EventEscrowWithdrawn:
		notifType = events.TypeEscrowWithdrawal
	case chains.EventEscrowRefunded:
		notifType = events.TypeEscrowRefund
	default:
		return
	}

	n := events.Notification{
		Type:      notifType,
		OrderID:   esc.OrderID,
		ChainRole: esc.Role,
		TxRef:     ev.TxRef,
		Secret:    ev.Secret,
		At:        ev.At,
	}
	if err := m.publisher.Publish(ctx, events.StreamSwapEvents, n); err != nil {
		m.log.Error("failed to publish notification", zap.String("type", notifType), zap.Error(err))
		return
	}
	m.log.Info("escrow event observed",
		zap.String("chain", network),
		zap.String("type", ev.Type),
		zap.String("order_id", esc.OrderID.String()),
		zap.String("role", esc.Role),
		zap.String("tx", ev.TxRef),
	)
}

func (m *Monitor) runTimeoutScanner(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	m.log.Info("timeout scanner started", zap.Duration("interval", m.cfg.ScanInterval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.ScanTimeouts(ctx); err != nil {
				m.log.Error("timeout scan failed", zap.Error(err))
			}
		}
	}
}

// ScanTimeouts flags tracked orders whose cancellation deadline elapsed
// without reaching a terminal state and routes them into the refund path.
func (m *Monitor) ScanTimeouts(ctx context.Context) error {
	expired, err := m.orders.ListExpired(ctx, m.cfg.ScanBatch)
	if err != nil {
		return err
	}

	for _, order := range expired {
		m.log.Info("order past cancellation deadline",
			zap.String("order_id", order.ID.String()),
			zap.String("status", order.Status),
			zap.String("phase", order.Phase),
		)
		// TxRef varies per scan so a still-pending refund is re-delivered on
		// the next tick instead of being deduplicated away.
		n := events.Notification{
			Type:    events.TypeOrderTimeout,
			OrderID: order.ID,
			TxRef:   fmt.Sprintf("scan:%d", time.Now().Unix()),
			At:      time.Now().UTC(),
		}
		if err := m.publisher.Publish(ctx, events.StreamSwapEvents, n); err != nil {
			m.log.Error("failed to publish timeout", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	}
	return nil
}
