package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/pageflow/internal/flow"
	"github.com/petrijr/pageflow/internal/fsm"
	"github.com/petrijr/pageflow/internal/gc"
	"github.com/petrijr/pageflow/internal/invoker"
	"github.com/petrijr/pageflow/internal/persistence"
	"github.com/petrijr/pageflow/pkg/api"
)

// DefaultExpiration is how long a continuation may stay idle before it is
// swept.
const DefaultExpiration = 30 * time.Minute

// entry is the registry's slot for one ticket. Its lock serializes access to
// the execution; removed is set when the ticket is swept, so a caller still
// holding the entry learns that the execution is gone.
type entry struct {
	mu      sync.Mutex
	exec    *flow.Execution
	removed atomic.Bool
}

// Engine is the continuation registry: it maps tickets to running flow
// executions, reports activity to the garbage collector and evicts what the
// collector sweeps.
type Engine struct {
	flows      *flowRegistry
	invoker    flow.ActionInvoker
	collector  *gc.Collector
	tombstones persistence.TombstoneStore
	observer   api.Observer
	clock      api.Clock
	logger     *slog.Logger
	newTicket  func() string
	maxDepth   int

	mu      sync.RWMutex
	entries map[string]*entry

	// collectMu couples Mark and Sweep into one critical section.
	collectMu sync.Mutex
}

var _ api.Registry = (*Engine)(nil)

// Config describes how to construct an Engine. Zero values select defaults.
type Config struct {
	Expiration time.Duration
	Invoker    flow.ActionInvoker
	Tombstones persistence.TombstoneStore
	Observer   api.Observer
	Clock      api.Clock
	Logger     *slog.Logger
	// NewTicket generates continuation tickets; random UUIDs by default.
	NewTicket func() string
	MaxDepth  int
}

// NewInMemoryEngine returns an Engine that keeps tombstones in memory.
func NewInMemoryEngine(inv flow.ActionInvoker) *Engine {
	return NewEngineWithConfig(Config{Invoker: inv})
}

// NewSQLiteEngine returns an Engine that records swept tickets in SQLite.
func NewSQLiteEngine(db *sql.DB, inv flow.ActionInvoker) (*Engine, error) {
	store, err := persistence.NewSQLiteTombstoneStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Invoker: inv, Tombstones: store}), nil
}

// NewPostgresEngine returns an Engine that records swept tickets in
// PostgreSQL.
func NewPostgresEngine(db *sql.DB, inv flow.ActionInvoker) (*Engine, error) {
	store, err := persistence.NewPostgresTombstoneStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Invoker: inv, Tombstones: store}), nil
}

// NewRedisEngine returns an Engine that records swept tickets in Redis.
func NewRedisEngine(client *redis.Client, inv flow.ActionInvoker) *Engine {
	return NewEngineWithConfig(Config{
		Invoker:    inv,
		Tombstones: persistence.NewRedisTombstoneStore(client, "pageflow:"),
	})
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) *Engine {
	if cfg.Expiration <= 0 {
		cfg.Expiration = DefaultExpiration
	}
	if cfg.Invoker == nil {
		cfg.Invoker = invoker.New(nil)
	}
	if cfg.Tombstones == nil {
		cfg.Tombstones = persistence.NewInMemoryTombstoneStore()
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}
	if cfg.Clock == nil {
		cfg.Clock = api.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewTicket == nil {
		cfg.NewTicket = uuid.NewString
	}

	return &Engine{
		flows:      newFlowRegistry(),
		invoker:    cfg.Invoker,
		collector:  gc.New(cfg.Expiration, cfg.Clock),
		tombstones: cfg.Tombstones,
		observer:   cfg.Observer,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		newTicket:  cfg.NewTicket,
		maxDepth:   cfg.MaxDepth,
		entries:    make(map[string]*entry),
	}
}

func (e *Engine) RegisterFlow(def api.FlowDefinition) error {
	return e.flows.Register(def)
}

// Flows returns the names of the registered flows.
func (e *Engine) Flows() []string {
	return e.flows.Names()
}

// Len returns the number of live executions.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}

// Expiration returns the idle time after which a ticket is swept.
func (e *Engine) Expiration() time.Duration {
	return e.collector.Expiration()
}

func (e *Engine) Start(ctx context.Context, name string, payload any) (string, error) {
	prog, err := e.flows.Get(name)
	if err != nil {
		return "", err
	}

	ticket := e.newTicket()
	exec := e.newExecution(ticket, prog)
	exec.SetPayload(payload)

	if err := exec.Start(ctx); err != nil {
		return "", err
	}
	if err := e.insert(ctx, ticket, exec); err != nil {
		return "", err
	}
	return ticket, nil
}

// NewExecution creates an unstarted execution of the named flow that is not
// registered anywhere. Hand it to Attach to make it reachable by ticket.
func (e *Engine) NewExecution(name, ticket string) (*flow.Execution, error) {
	prog, err := e.flows.Get(name)
	if err != nil {
		return nil, err
	}
	return e.newExecution(ticket, prog), nil
}

func (e *Engine) newExecution(ticket string, prog *fsm.Program) *flow.Execution {
	return flow.New(ticket, prog, e.invoker,
		flow.WithObserver(e.observer),
		flow.WithClock(e.clock),
		flow.WithLogger(e.logger),
		flow.WithMaxDepth(e.maxDepth),
	)
}

// Attach registers an execution created outside Start under ticket. It is
// the only way to put a ticket back into the registry and it refuses
// tickets that are marked, swept or buried, so an evicted execution cannot
// be resurrected.
func (e *Engine) Attach(ctx context.Context, ticket string, exec *flow.Execution) error {
	if exec == nil || exec.ID() != ticket {
		return fmt.Errorf("attach %s: execution belongs to another ticket", ticket)
	}
	return e.insert(ctx, ticket, exec)
}

func (e *Engine) insert(ctx context.Context, ticket string, exec *flow.Execution) error {
	if err := e.checkGone(ctx, ticket); err != nil {
		return err
	}
	if e.collector.IsMarked(ticket) {
		return fmt.Errorf("ticket %s: %w", ticket, api.ErrTicketExpired)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.entries[ticket]; exists {
		return fmt.Errorf("ticket %s already registered", ticket)
	}
	e.entries[ticket] = &entry{exec: exec}
	e.collector.Update(ticket)
	return nil
}

// checkGone fails with api.ErrTicketSwept when ticket was swept by this
// process or buried by any process sharing the tombstone store.
func (e *Engine) checkGone(ctx context.Context, ticket string) error {
	if e.collector.IsSwept(ticket) {
		return fmt.Errorf("ticket %s: %w", ticket, api.ErrTicketSwept)
	}
	buried, err := e.tombstones.IsBuried(ctx, ticket)
	if err != nil {
		return fmt.Errorf("ticket %s: tombstone lookup: %w", ticket, err)
	}
	if buried {
		return fmt.Errorf("ticket %s: %w", ticket, api.ErrTicketSwept)
	}
	return nil
}

func (e *Engine) lookup(ctx context.Context, ticket string) (*entry, error) {
	e.mu.RLock()
	ent := e.entries[ticket]
	e.mu.RUnlock()

	if ent == nil {
		if err := e.checkGone(ctx, ticket); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("ticket %s: %w", ticket, api.ErrTicketNotFound)
	}
	if e.collector.IsMarked(ticket) {
		return nil, fmt.Errorf("ticket %s: %w", ticket, api.ErrTicketExpired)
	}
	return ent, nil
}

func (e *Engine) Continue(ctx context.Context, ticket string, fn func(ctx context.Context, exec api.Execution) error) error {
	ent, err := e.lookup(ctx, ticket)
	if err != nil {
		return err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	// Swept while waiting for the lock.
	if ent.removed.Load() {
		return fmt.Errorf("ticket %s: %w", ticket, api.ErrTicketSwept)
	}
	e.collector.Update(ticket)

	if err := fn(ctx, ent.exec); err != nil {
		return err
	}
	if ent.removed.Load() {
		return fmt.Errorf("ticket %s: swept during request: %w", ticket, api.ErrTicketSwept)
	}
	return nil
}

func (e *Engine) TriggerEvent(ctx context.Context, ticket string, event string) (api.Snapshot, error) {
	var snap api.Snapshot
	err := e.Continue(ctx, ticket, func(ctx context.Context, exec api.Execution) error {
		err := exec.TriggerEvent(ctx, event)
		snap = api.SnapshotOf(exec)
		return err
	})
	return snap, err
}

func (e *Engine) IsMarked(ticket string) bool {
	return e.collector.IsMarked(ticket)
}

// Collect marks idle tickets and sweeps them in one step. Every swept ticket
// is removed from the registry, buried and reported to the observer.
func (e *Engine) Collect(ctx context.Context) (int, error) {
	e.collectMu.Lock()
	defer e.collectMu.Unlock()

	e.collector.Mark()

	var errs []error
	n := e.collector.Sweep(func(ticket string) {
		if err := e.evict(ctx, ticket); err != nil {
			errs = append(errs, err)
		}
	})
	return n, errors.Join(errs...)
}

func (e *Engine) evict(ctx context.Context, ticket string) error {
	e.mu.Lock()
	ent := e.entries[ticket]
	delete(e.entries, ticket)
	e.mu.Unlock()

	name := ""
	if ent != nil {
		ent.removed.Store(true)
		name = ent.exec.Name()
		// Drop action instances now unless a request is still using them.
		if ent.mu.TryLock() {
			ent.exec.Release()
			ent.mu.Unlock()
		}
	}

	e.observer.OnSweep(ctx, ticket)

	err := e.tombstones.Bury(ctx, persistence.Tombstone{Ticket: ticket, Flow: name, SweptAt: e.clock.Now()})
	if err != nil {
		e.logger.ErrorContext(ctx, "tombstone_failed",
			slog.String("ticket", ticket),
			slog.Any("error", err),
		)
		return fmt.Errorf("bury %s: %w", ticket, err)
	}
	return nil
}

// Purge forgets swept tickets older than retention, both in the collector
// and in the tombstone store. It returns the number of collector markers
// dropped.
func (e *Engine) Purge(ctx context.Context, retention time.Duration) (int, error) {
	n := e.collector.Purge(retention)

	buried, err := e.tombstones.Purge(ctx, e.clock.Now().Add(-retention))
	if err != nil {
		return n, fmt.Errorf("purge tombstones: %w", err)
	}
	if n > 0 || buried > 0 {
		e.logger.DebugContext(ctx, "tickets_purged",
			slog.Int("markers", n),
			slog.Int("tombstones", buried),
		)
	}
	return n, nil
}
