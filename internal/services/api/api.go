// Package api provides the HTTP API for the scoring engine
package api

import (
	"context"
	"net/http"
	"time"

	"scorekeeper/internal/core/version"
	"scorekeeper/internal/platform/config"
	phttp "scorekeeper/internal/platform/net/http"
	"scorekeeper/internal/platform/net/middleware"

	enginedom "scorekeeper/internal/services/engine/domain"
	enginesvc "scorekeeper/internal/services/engine/service"
	scores "scorekeeper/internal/services/scores/domain"
)

// Trigger starts scoring for one identity
type Trigger interface {
	Score(ctx context.Context, id enginedom.Identity, today time.Time) (enginesvc.ScoreOutcome, error)
}

// Reader serves score history reads
type Reader interface {
	LatestSmartWindow(ctx context.Context, id scores.Identity, since, until time.Time) ([]scores.SmartScore, error)
	LatestRawWindow(ctx context.Context, id scores.Identity, since, until time.Time) ([]scores.RawScore, error)
	Gaps(ctx context.Context, id scores.Identity) ([]scores.Gap, error)
}

// Options are the API options
type Options struct {
	Config         config.Conf
	Trigger        Trigger
	Reader         Reader
	Auth           middleware.AuthPort
	EnableSwagger  bool
	EnableProfiler bool
}

// Mount mounts the API onto the given router
func Mount(r phttp.Router, opt Options) {
	r.Use(middleware.Defaults()...)
	r.Use(middleware.CORS(middleware.CORSOptions{}))
	r.Use(middleware.Heartbeat("/healthz"))
	r.Use(middleware.Auth(opt.Auth, phttp.JSON))

	phttp.MountSwagger(r, opt.EnableSwagger)
	phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

	r.Get("/version", func(w http.ResponseWriter, req *http.Request) {
		phttp.RespondOK(w, req, version.Info())
	})

	h := &handlers{trigger: opt.Trigger, reader: opt.Reader}
	r.Route("/v1", func(v1 phttp.Router) {
		v1.Post("/score", h.score)
		v1.Route("/users/{userID}/projects/{projectID}/signals/{signal}", func(s phttp.Router) {
			phttp.GetJSON(s, "/smart", h.smartWindow)
			phttp.GetJSON(s, "/raw", h.rawWindow)
			phttp.GetJSON(s, "/gaps", h.gaps)
		})
	})
}
