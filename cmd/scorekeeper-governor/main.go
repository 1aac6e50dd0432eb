package main

import (
	"context"
	"time"

	"scorekeeper/internal/modkit"
	"scorekeeper/internal/modkit/repokit"
	"scorekeeper/internal/platform/config"
	"scorekeeper/internal/platform/logger"
	"scorekeeper/internal/platform/store"

	"scorekeeper/internal/adapters/activity"
	"scorekeeper/internal/adapters/dispatch"
	"scorekeeper/internal/adapters/oracle"
	enginesvc "scorekeeper/internal/services/engine/service"
	gapfillsvc "scorekeeper/internal/services/gapfill/service"
	scoressvc "scorekeeper/internal/services/scores/service"
)

func main() {
	root := config.New()
	govCfg := root.Prefix("CORE_GOVERNOR_")
	engCfg := root.Prefix("CORE_ENGINE_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")
	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", true),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()
	repokit.MustGuard(context.Background(), st)

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		Log: *l,
	}

	scores := scoressvc.New(deps)

	// the governor never scores anything itself; stale items go back to the
	// queue and remote workers pick them up via the jobs endpoint
	eng := enginesvc.New(deps,
		enginesvc.Config{
			MaxAttempts:           engCfg.MayInt("MAX_ATTEMPTS", 5),
			TimeoutSeconds:        engCfg.MayInt("TIMEOUT_SECONDS", 300),
			MaxConcurrentInFlight: engCfg.MayInt("MAX_IN_FLIGHT", 8),
			RetryBaseMs:           engCfg.MayInt("RETRY_BASE_MS", 500),
			DispatchBatch:         engCfg.MayInt("DISPATCH_BATCH", 64),
			PruneAfter:            govCfg.MayDuration("PRUNE_AFTER", 7*24*time.Hour),
		},
		nil,
		enginesvc.Ports{
			Scores: scores,
			Oracle: oracle.New(oracle.Options{
				APIKey: engCfg.MayString("ORACLE_API_KEY", "unused"),
			}, nil),
			Source: activity.NewClient(activity.Options{
				BaseURL: engCfg.MayString("ACTIVITY_BASE_URL", "http://localhost"),
			}),
			Dispatch: dispatch.NewHTTP(engCfg.MustString("WORKER_URL"), 0),
		},
	)

	gapfill := gapfillsvc.New(deps)

	ctx := context.Background()
	go func() {
		every := govCfg.MayDuration("GAPFILL_EVERY", time.Hour)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n, err := gapfill.FillAll(ctx, time.Now().UTC()); err != nil {
					l.Error().Err(err).Msg("gap fill sweep failed")
				} else if n > 0 {
					l.Info().Int("filled", n).Msg("gap fill sweep complete")
				}
			}
		}
	}()

	if err := eng.RunGovernor(ctx, govCfg.MayDuration("SWEEP_EVERY", 30*time.Second)); err != nil {
		l.Panic().Err(err).Msg("governor stopped")
	}
}
