package endpoints

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/keywordlens/keywordlens/internal/api"
	"github.com/keywordlens/keywordlens/internal/svcctx"
)

// ExportEndpoint handles GET /api/export, returning the merged table as a
// CSV download.
type ExportEndpoint struct{}

var _ api.Endpoint = (*ExportEndpoint)(nil)

func (e *ExportEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/export", e.handler
}

func (e *ExportEndpoint) RequiresInit() bool { return true }

func (e *ExportEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	eng := svcctx.EngineFrom(r.Context())
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}

	merged, path, err := eng.Export()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="keywords.csv"`)
	w.Header().Set("X-Export-Path", path)

	cw := csv.NewWriter(w)
	cw.Write(merged.Header)
	cw.WriteAll(merged.Records)
	cw.Flush()
}

func (e *ExportEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the merged results as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			data, err := client.GetRaw(cmd.Context(), "/api/export")
			if err != nil {
				return err
			}

			if outPath == "" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			fmt.Printf("Wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the CSV to a file instead of stdout")
	return cmd
}
