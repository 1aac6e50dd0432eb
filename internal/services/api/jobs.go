package api

import (
	"context"
	"net/http"

	"scorekeeper/internal/adapters/dispatch"
	"scorekeeper/internal/platform/logger"
	phttp "scorekeeper/internal/platform/net/http"
	"scorekeeper/internal/platform/net/http/bind"
)

type jobRequest struct {
	ItemID int64 `json:"item_id" validate:"required,gt=0"`
}

type jobResponse struct {
	Started bool `json:"started"`
}

// MountJobs exposes the dispatch target for queued work. The endpoint only
// confirms the job started; completion is observable through the queue row
func MountJobs(r phttp.Router, proc dispatch.Processor) {
	log := logger.Named("jobs")

	r.Post("/jobs", func(w http.ResponseWriter, req *http.Request) {
		body, err := bind.ParseJSON[jobRequest](req)
		if err != nil {
			phttp.RespondError(w, req, err)
			return
		}

		go func() {
			ctx := context.WithoutCancel(req.Context())
			if err := proc.ProcessItem(ctx, body.ItemID); err != nil {
				log.Warn().Err(err).Int64("item_id", body.ItemID).Msg("job failed")
			}
		}()

		phttp.JSON(w, http.StatusAccepted, phttp.Envelope{
			StatusCode: http.StatusAccepted,
			Status:     http.StatusText(http.StatusAccepted),
			Data:       jobResponse{Started: true},
		})
	})
}
