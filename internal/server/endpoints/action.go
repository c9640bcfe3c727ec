package endpoints

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/keywordlens/keywordlens/internal/api"
	"github.com/keywordlens/keywordlens/internal/svcctx"
	"github.com/keywordlens/keywordlens/internal/triage"
)

// ActionRequest is a manual review decision.
type ActionRequest struct {
	// Action is "keep", "delete" or "undecided".
	Action string `json:"action"`
	// Index targets a review position; omitted or negative means the
	// current cursor item.
	Index *int `json:"index,omitempty"`
}

// ActionResponse reports the decided item and the next cursor position.
type ActionResponse struct {
	Item triage.Item `json:"item"`
	Next int         `json:"next"`
}

// ActionEndpoint handles POST /api/action.
type ActionEndpoint struct{}

var _ api.Endpoint = (*ActionEndpoint)(nil)

func (e *ActionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/action", e.handler
}

func (e *ActionEndpoint) RequiresInit() bool { return true }

func (e *ActionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	eng := svcctx.EngineFrom(r.Context())
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}

	index := -1
	if req.Index != nil {
		index = *req.Index
	}
	item, next, err := eng.Action(index, req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Item: item, Next: next})
}

func (e *ActionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "action <keep|delete|undecided>",
		Short: "Decide the current review keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ActionRequest{Action: args[0]}
			if cmd.Flags().Changed("index") {
				req.Index = &index
			}

			client := api.NewClient(getServerURL())
			var resp ActionResponse
			if err := client.Post(cmd.Context(), "/api/action", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "Review position to decide (default: current)")
	return cmd
}

// NavigateRequest jumps the review cursor.
type NavigateRequest struct {
	Index int `json:"index"`
}

// NavigateResponse reports the item now under review.
type NavigateResponse struct {
	Item triage.Item `json:"item"`
}

// NavigateEndpoint handles POST /api/navigate.
type NavigateEndpoint struct{}

var _ api.Endpoint = (*NavigateEndpoint)(nil)

func (e *NavigateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/navigate", e.handler
}

func (e *NavigateEndpoint) RequiresInit() bool { return true }

func (e *NavigateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	eng := svcctx.EngineFrom(r.Context())
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}

	item, err := eng.Navigate(req.Index)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, NavigateResponse{Item: item})
}

func (e *NavigateEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "navigate <index>",
		Short: "Jump the review cursor to a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}

			client := api.NewClient(getServerURL())
			var resp NavigateResponse
			if err := client.Post(cmd.Context(), "/api/navigate", NavigateRequest{Index: index}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
