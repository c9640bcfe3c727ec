package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/keywordlens/keywordlens/internal/api"
	"github.com/keywordlens/keywordlens/internal/svcctx"
)

// ConfigureReviewRequest chooses which tiers enter manual review. Excluded
// tiers take their default outcome: manual is kept, gray queues for
// automated verification, dropped is deleted.
type ConfigureReviewRequest struct {
	IncludeManual  bool `json:"include_manual"`
	IncludeGray    bool `json:"include_gray"`
	IncludeDropped bool `json:"include_dropped"`
}

// ConfigureReviewResponse reports the rebuilt queue.
type ConfigureReviewResponse struct {
	QueueLength int `json:"queue_length"`
}

// ConfigureReviewEndpoint handles POST /api/review/configure.
type ConfigureReviewEndpoint struct{}

var _ api.Endpoint = (*ConfigureReviewEndpoint)(nil)

func (e *ConfigureReviewEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/review/configure", e.handler
}

func (e *ConfigureReviewEndpoint) RequiresInit() bool { return true }

func (e *ConfigureReviewEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ConfigureReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	eng := svcctx.EngineFrom(r.Context())
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}

	n := eng.ConfigureReview(req.IncludeManual, req.IncludeGray, req.IncludeDropped)
	writeJSON(w, http.StatusOK, ConfigureReviewResponse{QueueLength: n})
}

func (e *ConfigureReviewEndpoint) Command(getServerURL func() string) *cobra.Command {
	var manual, gray, dropped bool
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Choose which tiers enter manual review",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ConfigureReviewResponse
			req := ConfigureReviewRequest{
				IncludeManual:  manual,
				IncludeGray:    gray,
				IncludeDropped: dropped,
			}
			if err := client.Post(cmd.Context(), "/api/review/configure", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&manual, "manual", true, "Review the high-similarity tier")
	cmd.Flags().BoolVar(&gray, "gray", false, "Review the borderline tier (otherwise auto-verified)")
	cmd.Flags().BoolVar(&dropped, "dropped", false, "Review the low-similarity tier (otherwise deleted)")
	return cmd
}
