package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSchema_Bootstrap demonstrates creating ledger tables with their headers.
func ExampleSchema_Bootstrap() {
	store := stores.NewMemoryStore()
	schema := stores.NewSchema(
		stores.TableSpec{Name: "Cycle_Log", Header: []string{"cycle_id", "civic_load"}},
		stores.TableSpec{Name: "World_Events", Header: []string{"cycle_id", "domain", "severity"}},
	)

	ctx := context.Background()
	created, err := schema.Bootstrap(ctx, store)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("created:", created)

	_ = store.AppendRows(ctx, "Cycle_Log", [][]engine.Value{{41, 3}, {42, 0}})
	table, _ := store.Read(ctx, "Cycle_Log")
	v, _ := table.Get(1, "civic_load")
	fmt.Println("cycle 42 civic load:", v)
	// Output:
	// created: [Cycle_Log World_Events]
	// cycle 42 civic load: 0
}
