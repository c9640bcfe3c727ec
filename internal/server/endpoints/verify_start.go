package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/keywordlens/keywordlens/internal/api"
	"github.com/keywordlens/keywordlens/internal/svcctx"
)

// VerifyStartResponse acknowledges a started verification run.
type VerifyStartResponse struct {
	Message string `json:"message"`
}

// VerifyStartEndpoint handles POST /api/verify/start.
type VerifyStartEndpoint struct{}

var _ api.Endpoint = (*VerifyStartEndpoint)(nil)

func (e *VerifyStartEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/verify/start", e.handler
}

func (e *VerifyStartEndpoint) RequiresInit() bool { return true }

func (e *VerifyStartEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	eng := svcctx.EngineFrom(r.Context())
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}

	msg, err := eng.StartVerification(r.Context())
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, VerifyStartResponse{Message: msg})
}

func (e *VerifyStartEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Start automated verification of borderline keywords",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp VerifyStartResponse
			if err := client.Post(cmd.Context(), "/api/verify/start", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
