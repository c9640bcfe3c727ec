package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/keywordlens/keywordlens/internal/api"
	"github.com/keywordlens/keywordlens/internal/engine"
	"github.com/keywordlens/keywordlens/internal/svcctx"
)

// StatusEndpoint handles GET /api/status.
type StatusEndpoint struct{}

var _ api.Endpoint = (*StatusEndpoint)(nil)

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return true }

func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	eng := svcctx.EngineFrom(r.Context())
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}
	writeJSON(w, http.StatusOK, eng.Status())
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show run status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp engine.Snapshot
			if err := client.Get(cmd.Context(), "/api/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
