package endpoints

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/keywordlens/keywordlens/internal/api"
	"github.com/keywordlens/keywordlens/internal/export"
	"github.com/keywordlens/keywordlens/internal/svcctx"
)

// UploadResponse reports what the server found in the uploaded table.
type UploadResponse struct {
	Keywords      int      `json:"keywords"`
	KeywordColumn string   `json:"keyword_column"`
	Preview       []string `json:"preview,omitempty"`
}

// UploadEndpoint handles POST /api/upload with a CSV body.
type UploadEndpoint struct{}

var _ api.Endpoint = (*UploadEndpoint)(nil)

func (e *UploadEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/upload", e.handler
}

func (e *UploadEndpoint) RequiresInit() bool { return true }

func (e *UploadEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	rows, err := export.ReadCSV(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	eng := svcctx.EngineFrom(r.Context())
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}

	keywords, err := eng.SetRows(rows)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	preview := keywords
	if len(preview) > 5 {
		preview = preview[:5]
	}
	writeJSON(w, http.StatusOK, UploadResponse{
		Keywords:      len(keywords),
		KeywordColumn: rows.Header[export.KeywordColumn(rows.Header)],
		Preview:       preview,
	})
}

func (e *UploadEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.csv>",
		Short: "Upload a keyword table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			client := api.NewClient(getServerURL())
			var resp UploadResponse
			if err := client.PostRaw(cmd.Context(), "/api/upload", "text/csv", f, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
