package endpoints

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keywordlens/keywordlens/internal/api"
	"github.com/keywordlens/keywordlens/internal/svcctx"
)

// AnalyzeRequest is the request body for starting an analysis run.
type AnalyzeRequest struct {
	// Keywords to classify. Optional when a table was uploaded first.
	Keywords []string `json:"keywords,omitempty"`
	// ProductDescription anchors the embedding comparison.
	ProductDescription string `json:"product_description"`
	// ProductImage is the base64-encoded reference photo for the vision
	// judge. Optional; verification needs it, classification does not.
	ProductImage string `json:"product_image,omitempty"`
}

// AnalyzeResponse acknowledges a started analysis.
type AnalyzeResponse struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// AnalyzeEndpoint handles POST /api/analyze.
type AnalyzeEndpoint struct{}

var _ api.Endpoint = (*AnalyzeEndpoint)(nil)

func (e *AnalyzeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/analyze", e.handler
}

func (e *AnalyzeEndpoint) RequiresInit() bool { return true }

func (e *AnalyzeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ProductDescription) == "" {
		writeError(w, http.StatusBadRequest, "product_description is required")
		return
	}

	var refImage []byte
	if req.ProductImage != "" {
		var err error
		refImage, err = base64.StdEncoding.DecodeString(req.ProductImage)
		if err != nil {
			writeError(w, http.StatusBadRequest, "product_image is not valid base64")
			return
		}
	}

	eng := svcctx.EngineFrom(r.Context())
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}

	if err := eng.StartAnalysis(r.Context(), req.Keywords, req.ProductDescription, refImage); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, AnalyzeResponse{
		RunID:   eng.ID(),
		Message: "analysis started",
	})
}

func (e *AnalyzeEndpoint) Command(getServerURL func() string) *cobra.Command {
	var description, imagePath string
	cmd := &cobra.Command{
		Use:   "analyze [keyword]...",
		Short: "Start keyword analysis",
		Long: `Start classifying keywords against the product description.
Keywords can be passed as arguments or come from a previously uploaded table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if description == "" {
				return fmt.Errorf("--description is required")
			}

			req := AnalyzeRequest{
				Keywords:           args,
				ProductDescription: description,
			}
			if imagePath != "" {
				data, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("failed to read product image: %w", err)
				}
				req.ProductImage = base64.StdEncoding.EncodeToString(data)
			}

			client := api.NewClient(getServerURL())
			var resp AnalyzeResponse
			if err := client.Post(cmd.Context(), "/api/analyze", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Product description (required)")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Reference product image file")
	return cmd
}
