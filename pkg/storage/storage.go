package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/levenlabs/go-lflag"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrTariffNotFound = errors.New("tariff not found")
)

// Database defines the interface for persisting job and tariff definitions
// and the per-day elapsed counters.
type Database interface {
	// Jobs
	ListJobs(ctx context.Context) ([]types.JobDefinition, error)
	GetJob(ctx context.Context, entityID string) (types.JobDefinition, error)
	UpsertJob(ctx context.Context, job types.JobDefinition) error
	RemoveJob(ctx context.Context, entityID string) error

	// Tariffs
	ListTariffs(ctx context.Context) ([]types.TariffDefinition, error)
	UpsertTariff(ctx context.Context, tariff types.TariffDefinition) error
	RemoveTariff(ctx context.Context, name string) error

	// Elapsed counters. SaveElapsed replaces the stored snapshot wholesale;
	// LoadElapsed returns the day the snapshot was taken so callers can
	// discard it across a date change.
	LoadElapsed(ctx context.Context) (time.Time, map[string]float64, error)
	SaveElapsed(ctx context.Context, day time.Time, elapsed map[string]float64) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "sqlite", "Storage provider to use (available: sqlite)")

	var p struct{ Database }

	sq := configuredSQLite()

	lflag.Do(func() {
		switch *provider {
		case "sqlite":
			if err := sq.Validate(); err != nil {
				panic(fmt.Sprintf("sqlite validation failed: %v", err))
			}
			p.Database = sq
			if err := sq.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("sqlite init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
