package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/pageflow/internal/testutil"
)

// TombstoneStoreSuite runs the same contract against every backend.
type TombstoneStoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) TombstoneStore

	store TombstoneStore
	ctx   context.Context
}

func (s *TombstoneStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore(s.T())
}

func (s *TombstoneStoreSuite) TestBuryAndLookup() {
	at := testutil.Epoch

	buried, err := s.store.IsBuried(s.ctx, "T1")
	s.Require().NoError(err)
	s.False(buried)

	s.Require().NoError(s.store.Bury(s.ctx, Tombstone{Ticket: "T1", Flow: "Registration", SweptAt: at}))

	buried, err = s.store.IsBuried(s.ctx, "T1")
	s.Require().NoError(err)
	s.True(buried)

	buried, err = s.store.IsBuried(s.ctx, "T2")
	s.Require().NoError(err)
	s.False(buried)
}

func (s *TombstoneStoreSuite) TestBuryIsIdempotent() {
	at := testutil.Epoch
	s.Require().NoError(s.store.Bury(s.ctx, Tombstone{Ticket: "T1", Flow: "Registration", SweptAt: at}))
	// A second burial must not move the sweep time forward.
	s.Require().NoError(s.store.Bury(s.ctx, Tombstone{Ticket: "T1", Flow: "Registration", SweptAt: at.Add(48 * time.Hour)}))

	n, err := s.store.Purge(s.ctx, at.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *TombstoneStoreSuite) TestPurgeRemovesOldTombstones() {
	at := testutil.Epoch
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Bury(s.ctx, Tombstone{
			Ticket:  fmt.Sprintf("T%d", i),
			Flow:    "Registration",
			SweptAt: at.Add(time.Duration(i) * time.Hour),
		}))
	}

	n, err := s.store.Purge(s.ctx, at.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Equal(2, n)

	for i, want := range []bool{false, false, true, true, true} {
		buried, err := s.store.IsBuried(s.ctx, fmt.Sprintf("T%d", i))
		s.Require().NoError(err)
		s.Equal(want, buried, "T%d", i)
	}

	n, err = s.store.Purge(s.ctx, at.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Equal(0, n)
}

func TestInMemoryTombstoneStore(t *testing.T) {
	suite.Run(t, &TombstoneStoreSuite{newStore: func(t *testing.T) TombstoneStore {
		return NewInMemoryTombstoneStore()
	}})
}

func TestSQLiteTombstoneStore(t *testing.T) {
	suite.Run(t, &TombstoneStoreSuite{newStore: func(t *testing.T) TombstoneStore {
		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			t.Fatalf("sql.Open: %v", err)
		}
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = db.Close() })

		store, err := NewSQLiteTombstoneStore(db)
		if err != nil {
			t.Fatalf("NewSQLiteTombstoneStore: %v", err)
		}
		return store
	}})
}

func TestSQLiteTombstoneStore_SurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/tombstones.db"
	ctx := context.Background()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	store, err := NewSQLiteTombstoneStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteTombstoneStore: %v", err)
	}
	if err := store.Bury(ctx, Tombstone{Ticket: "T1", Flow: "f", SweptAt: time.Now()}); err != nil {
		t.Fatalf("Bury: %v", err)
	}
	_ = db.Close()

	db, err = sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	store, err = NewSQLiteTombstoneStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteTombstoneStore: %v", err)
	}
	buried, err := store.IsBuried(ctx, "T1")
	if err != nil || !buried {
		t.Fatalf("expected T1 to stay buried, got %v, %v", buried, err)
	}
}

func TestPostgresTombstoneStore(t *testing.T) {
	dsn := testutil.StartPostgresContainer(t)

	suite.Run(t, &TombstoneStoreSuite{newStore: func(t *testing.T) TombstoneStore {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			t.Fatalf("sql.Open: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		store, err := NewPostgresTombstoneStore(db)
		if err != nil {
			t.Fatalf("NewPostgresTombstoneStore: %v", err)
		}
		if _, err := db.Exec(`TRUNCATE tombstones`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return store
	}})
}

func TestRedisTombstoneStore(t *testing.T) {
	addr := testutil.StartRedisContainer(t)

	suite.Run(t, &TombstoneStoreSuite{newStore: func(t *testing.T) TombstoneStore {
		client := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { _ = client.Close() })

		if err := client.FlushDB(context.Background()).Err(); err != nil {
			t.Fatalf("flushdb: %v", err)
		}
		return NewRedisTombstoneStore(client, "pageflow:test:")
	}})
}

func TestMongoTombstoneStore(t *testing.T) {
	uri := testutil.StartMongoContainer(t)

	suite.Run(t, &TombstoneStoreSuite{newStore: func(t *testing.T) TombstoneStore {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			t.Fatalf("mongo.Connect: %v", err)
		}
		t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

		coll := client.Database("pageflow_test").Collection("tombstones")
		if err := coll.Drop(ctx); err != nil {
			t.Fatalf("drop: %v", err)
		}
		return NewMongoTombstoneStore(client, "pageflow_test", "tombstones")
	}})
}
