package main

import (
	"context"

	"scorekeeper/internal/modkit"
	"scorekeeper/internal/modkit/repokit"
	"scorekeeper/internal/platform/config"
	"scorekeeper/internal/platform/logger"
	phttp "scorekeeper/internal/platform/net/http"
	"scorekeeper/internal/platform/store"

	"scorekeeper/internal/adapters/activity"
	"scorekeeper/internal/adapters/dispatch"
	"scorekeeper/internal/adapters/oracle"
	"scorekeeper/internal/services/api"
	enginesvc "scorekeeper/internal/services/engine/service"
	scoressvc "scorekeeper/internal/services/scores/service"
)

func main() {
	root := config.New()
	wrkCfg := root.Prefix("CORE_WORKER_")
	engCfg := root.Prefix("CORE_ENGINE_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")
	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 8)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", true),
		},
		CH: store.CHConfig{
			Enabled:    chCfg.MayBool("ENABLED", false),
			URL:        chCfg.MayString("DBURL", ""),
			ClientName: "scorekeeper",
			ClientTag:  "worker",
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
		CH:  st.CH,
		Log: *l,
	}

	scores := scoressvc.New(deps)

	// the worker dispatches to itself; Bind below closes the cycle
	disp := dispatch.NewLocal(nil)

	eng := enginesvc.New(deps,
		enginesvc.Config{
			MaxAttempts:           engCfg.MayInt("MAX_ATTEMPTS", 5),
			TimeoutSeconds:        engCfg.MayInt("TIMEOUT_SECONDS", 300),
			MaxConcurrentInFlight: engCfg.MayInt("MAX_IN_FLIGHT", 8),
			RetryBaseMs:           engCfg.MayInt("RETRY_BASE_MS", 500),
			DispatchBatch:         engCfg.MayInt("DISPATCH_BATCH", 64),
		},
		nil,
		enginesvc.Ports{
			Scores: scores,
			Oracle: oracle.New(oracle.Options{
				APIKey:  engCfg.MustString("ORACLE_API_KEY"),
				BaseURL: engCfg.MayString("ORACLE_BASE_URL", ""),
				Model:   engCfg.MayString("ORACLE_MODEL", ""),
			}, oracle.NewAudit(st.CH)),
			Source: activity.NewClient(activity.Options{
				BaseURL: engCfg.MustString("ACTIVITY_BASE_URL"),
				APIKey:  engCfg.MayString("ACTIVITY_API_KEY", ""),
			}),
			Dispatch: disp,
		},
	)
	disp.Bind(eng)

	// jobs endpoint for remote dispatchers (reads CORE_WORKER_PORT / ADDR)
	srv := phttp.NewServer(wrkCfg)
	api.MountJobs(srv.Router(), eng)

	ctx := context.Background()
	go func() {
		if err := eng.Run(ctx); err != nil {
			l.Panic().Err(err).Msg("worker loop stopped")
		}
	}()

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
