package pageflow

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/pageflow/internal/engine"
	"github.com/petrijr/pageflow/internal/invoker"
	"github.com/petrijr/pageflow/internal/persistence"
	"github.com/petrijr/pageflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Registry       = api.Registry
	Flow           = api.Flow
	Execution      = api.Execution
	FlowDefinition = api.FlowDefinition
	StateSpec      = api.StateSpec
	TransitionSpec = api.TransitionSpec
	ActionRef      = api.ActionRef
	LastState      = api.LastState
	ActionContext  = api.ActionContext
	Next           = api.Next
	Snapshot       = api.Snapshot
	Clock          = api.Clock

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	DefinitionError = api.DefinitionError
	UsageError      = api.UsageError
	InvocationError = api.InvocationError
)

// Engine is the continuation registry.
type Engine = engine.Engine

// Classes maps action class names to factories.
type Classes = invoker.Classes

// Factory creates an action object.
type Factory = invoker.Factory

// Loader provides action classes that are not registered up front.
type Loader = invoker.Loader

// LoaderFunc adapts a function to Loader.
type LoaderFunc = invoker.LoaderFunc

// Dispatcher calls a named method on an action object.
type Dispatcher = invoker.Dispatcher

// TombstoneStore records swept tickets.
type TombstoneStore = persistence.TombstoneStore

// Re-export common helpers.

var (
	Emit    = api.Emit
	NoEvent = api.NoEvent

	SnapshotOf = api.SnapshotOf

	NewClasses           = invoker.NewClasses
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export sentinel errors.

var (
	ErrInvalidDefinition  = api.ErrInvalidDefinition
	ErrProtectedState     = api.ErrProtectedState
	ErrProtectedEvent     = api.ErrProtectedEvent
	ErrUnknownTargetState = api.ErrUnknownTargetState

	ErrNotStarted     = api.ErrNotStarted
	ErrAlreadyStarted = api.ErrAlreadyStarted
	ErrAlreadyFinal   = api.ErrAlreadyFinal
	ErrNoView         = api.ErrNoView
	ErrCascadeLimit   = api.ErrCascadeLimit

	ErrMethodNotFound          = api.ErrMethodNotFound
	ErrClassNotFound           = api.ErrClassNotFound
	ErrActionDirectoryRequired = api.ErrActionDirectoryRequired
	ErrInvalidEvent            = api.ErrInvalidEvent

	ErrFlowNotFound   = api.ErrFlowNotFound
	ErrFlowExists     = api.ErrFlowExists
	ErrTicketNotFound = api.ErrTicketNotFound
	ErrTicketExpired  = api.ErrTicketExpired
	ErrTicketSwept    = api.ErrTicketSwept
)

// Re-export reserved names and the kinds of states.

const (
	StateInitial = api.StateInitial
	StateFinal   = api.StateFinal
	EventEnd     = api.EventEnd

	StateView   = api.StateView
	StateAction = api.StateAction
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine that remembers swept tickets only for
// the lifetime of the process.
func NewInMemoryEngine(classes *Classes) *Engine {
	return engine.NewInMemoryEngine(invoker.New(classes))
}

// NewSQLiteEngine returns an Engine that records swept tickets in SQLite.
func NewSQLiteEngine(db *sql.DB, classes *Classes) (*Engine, error) {
	return engine.NewSQLiteEngine(db, invoker.New(classes))
}

// NewPostgresEngine returns an Engine that records swept tickets in
// PostgreSQL.
func NewPostgresEngine(db *sql.DB, classes *Classes) (*Engine, error) {
	return engine.NewPostgresEngine(db, invoker.New(classes))
}

// NewRedisEngine returns an Engine that records swept tickets in Redis.
func NewRedisEngine(client *redis.Client, classes *Classes) *Engine {
	return engine.NewRedisEngine(client, invoker.New(classes))
}

// NewMongoEngine returns an Engine that records swept tickets in MongoDB.
func NewMongoEngine(client *mongo.Client, classes *Classes) *Engine {
	return engine.NewEngineWithConfig(engine.Config{
		Invoker:    invoker.New(classes),
		Tombstones: NewMongoTombstones(client, "", ""),
	})
}

// Tombstone store constructors, for use with WithTombstones.

func NewInMemoryTombstones() TombstoneStore {
	return persistence.NewInMemoryTombstoneStore()
}

func NewSQLiteTombstones(db *sql.DB) (TombstoneStore, error) {
	return persistence.NewSQLiteTombstoneStore(db)
}

func NewPostgresTombstones(db *sql.DB) (TombstoneStore, error) {
	return persistence.NewPostgresTombstoneStore(db)
}

func NewRedisTombstones(client *redis.Client, prefix string) TombstoneStore {
	return persistence.NewRedisTombstoneStore(client, prefix)
}

func NewMongoTombstones(client *mongo.Client, dbName, collName string) TombstoneStore {
	return persistence.NewMongoTombstoneStore(client, dbName, collName)
}
