package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/keywordlens/keywordlens/internal/api"
	"github.com/keywordlens/keywordlens/internal/svcctx"
	"github.com/keywordlens/keywordlens/internal/triage"
)

// ItemsResponse lists classified keywords.
type ItemsResponse struct {
	Items []triage.Item `json:"items"`
	Count int           `json:"count"`
}

// ManualQueueEndpoint handles GET /api/manual_queue.
type ManualQueueEndpoint struct{}

var _ api.Endpoint = (*ManualQueueEndpoint)(nil)

func (e *ManualQueueEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/manual_queue", e.handler
}

func (e *ManualQueueEndpoint) RequiresInit() bool { return true }

func (e *ManualQueueEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	eng := svcctx.EngineFrom(r.Context())
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}
	items := eng.ReviewList()
	writeJSON(w, http.StatusOK, ItemsResponse{Items: items, Count: len(items)})
}

func (e *ManualQueueEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List the manual review queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ItemsResponse
			if err := client.Get(cmd.Context(), "/api/manual_queue", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ItemsEndpoint handles GET /api/items.
type ItemsEndpoint struct{}

var _ api.Endpoint = (*ItemsEndpoint)(nil)

func (e *ItemsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/items", e.handler
}

func (e *ItemsEndpoint) RequiresInit() bool { return true }

func (e *ItemsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	eng := svcctx.EngineFrom(r.Context())
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}
	items := eng.AllItems()
	writeJSON(w, http.StatusOK, ItemsResponse{Items: items, Count: len(items)})
}

func (e *ItemsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "items",
		Short: "List every classified keyword",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ItemsResponse
			if err := client.Get(cmd.Context(), "/api/items", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
