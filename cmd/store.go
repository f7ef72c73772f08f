package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/apollo"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "prospect.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initApollo() (apollo.Client, error) {
	if cfg.Apollo.Key == "" {
		return nil, eris.New("apollo API key is required (PROSPECT_APOLLO_KEY)")
	}

	opts := []apollo.Option{
		apollo.WithRateLimit(cfg.Apollo.RatePerSecond),
	}
	if cfg.Apollo.BaseURL != "" {
		opts = append(opts, apollo.WithBaseURL(cfg.Apollo.BaseURL))
	}
	return apollo.NewClient(cfg.Apollo.Key, opts...), nil
}

func triageLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Triage.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "load timezone %s", cfg.Triage.Timezone)
	}
	return loc, nil
}

func stalenessWindow() time.Duration {
	return time.Duration(cfg.Enrich.StalenessHours) * time.Hour
}
