package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/keywordlens/keywordlens/internal/api"
	"github.com/keywordlens/keywordlens/internal/svcctx"
)

// BrowserOpenResponse acknowledges the browser request.
type BrowserOpenResponse struct {
	Message string `json:"message"`
}

// BrowserOpenEndpoint handles POST /api/browser/open.
type BrowserOpenEndpoint struct{}

var _ api.Endpoint = (*BrowserOpenEndpoint)(nil)

func (e *BrowserOpenEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/browser/open", e.handler
}

func (e *BrowserOpenEndpoint) RequiresInit() bool { return true }

func (e *BrowserOpenEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	eng := svcctx.EngineFrom(r.Context())
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}

	if err := eng.OpenBrowser(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, BrowserOpenResponse{Message: "browser ready"})
}

func (e *BrowserOpenEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "browser",
		Short: "Open the review browser session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp BrowserOpenResponse
			if err := client.Post(cmd.Context(), "/api/browser/open", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ShutdownResponse acknowledges the shutdown request.
type ShutdownResponse struct {
	Message string `json:"message"`
}

// ShutdownEndpoint handles POST /api/shutdown.
type ShutdownEndpoint struct{}

var _ api.Endpoint = (*ShutdownEndpoint)(nil)

func (e *ShutdownEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/shutdown", e.handler
}

func (e *ShutdownEndpoint) RequiresInit() bool { return false }

func (e *ShutdownEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svcs := svcctx.ServicesFrom(r.Context())
	if svcs == nil || svcs.Shutdown == nil {
		writeError(w, http.StatusServiceUnavailable, "server not ready")
		return
	}

	// Respond before stopping so the client gets an acknowledgement.
	writeJSON(w, http.StatusOK, ShutdownResponse{Message: "shutting down"})
	go svcs.Shutdown()
}

func (e *ShutdownEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Stop the running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ShutdownResponse
			if err := client.Post(cmd.Context(), "/api/shutdown", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
