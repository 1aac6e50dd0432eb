// @title         Scorekeeper API
// @version       0.1.0
// @description   Scoring triggers plus raw, smart, and gap reads

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
	// service-scoped config for HTTP etc (CORE_API_*)
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")
	engCfg := root.Prefix("CORE_ENGINE_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")      // pgCfg lives under SERVICE_PGSQL_*
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_") // chCfg lives under SERVICE_CLICKHOUSE_*
	l := logger.Get()

	st, err := store.Open(
		context.Background(),
		store.Config{
			PG: store.PGConfig{
				Enabled:     true,
				URL:         pgCfg.MustString("DBURL"),
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
				LogSQL:      pgCfg.MayBool("LOG_SQL", true),
			},
			CH: store.CHConfig{
				Enabled:    chCfg.MayBool("ENABLED", false),
				URL:        chCfg.MayString("DBURL", ""),
				ClientName: "scorekeeper",
				ClientTag:  "api",
			},
		},
		store.WithLogger(*logger.Get()),
	)
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

	// the api enqueues and hands the actual processing to the worker fleet
	eng := enginesvc.New(deps,
		enginesvc.Config{
			MaxAttempts:           engCfg.MayInt("MAX_ATTEMPTS", 5),
			TimeoutSeconds:        engCfg.MayInt("TIMEOUT_SECONDS", 300),
			MaxConcurrentInFlight: engCfg.MayInt("MAX_IN_FLIGHT", 8),
			RetryBaseMs:           engCfg.MayInt("RETRY_BASE_MS", 500),
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
			Dispatch: dispatch.NewHTTP(engCfg.MustString("WORKER_URL"), 0),
		},
	)

	// http server (reads CORE_API_PORT / CORE_API_ADDR)
	srv := phttp.NewServer(apiCfg)

	api.Mount(
		srv.Router(),
		api.Options{
			Config:         apiCfg,
			Trigger:        eng,
			Reader:         scores,
			EnableSwagger:  apiCfg.MayBool("SWAGGER", true),
			EnableProfiler: apiCfg.MayBool("PROFILER", true),
		},
	)

	if err := srv.Run(context.Background()); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
