package endpoints

import (
	"github.com/keywordlens/keywordlens/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health
		&HealthEndpoint{},

		// Run lifecycle
		&AnalyzeEndpoint{},
		&UploadEndpoint{},
		&StatusEndpoint{},

		// Manual review
		&ManualQueueEndpoint{},
		&ItemsEndpoint{},
		&ActionEndpoint{},
		&NavigateEndpoint{},
		&ConfigureReviewEndpoint{},
		&BrowserOpenEndpoint{},

		// Verification and results
		&VerifyStartEndpoint{},
		&ExportEndpoint{},

		// Server control
		&ShutdownEndpoint{},
	}
}
