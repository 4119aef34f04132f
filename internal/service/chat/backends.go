package chat

import (
	"context"
	"fmt"

	"neurobridge/internal/capabilities"
	"neurobridge/internal/domain/models/chat"
	chatSvc "neurobridge/internal/domain/services/chat"
)

// BackendRouter routes a turn to the backend that supports the requested
// model and clamps the token budget to the model's capabilities.
type BackendRouter struct {
	backends []chatSvc.AssistantBackend
	caps     *capabilities.Registry
}

// NewBackendRouter creates a router over the registered backends.
func NewBackendRouter(caps *capabilities.Registry, backends ...chatSvc.AssistantBackend) *BackendRouter {
	return &BackendRouter{
		backends: backends,
		caps:     caps,
	}
}

// Name returns the router name.
func (r *BackendRouter) Name() string {
	return "router"
}

// SupportsModel returns true if any registered backend supports the model.
func (r *BackendRouter) SupportsModel(model string) bool {
	for _, backend := range r.backends {
		if backend.SupportsModel(model) {
			return true
		}
	}
	return false
}

// StreamTurn delegates to the first backend supporting the model.
func (r *BackendRouter) StreamTurn(ctx context.Context, req *chatSvc.GenerateRequest) (<-chan chat.Frame, error) {
	for _, backend := range r.backends {
		if !backend.SupportsModel(req.Model) {
			continue
		}

		if r.caps != nil {
			if modelCaps, err := r.caps.GetModelCapabilities(req.Model); err == nil {
				if modelCaps.MaxOutputTokens > 0 && (req.MaxTokens <= 0 || req.MaxTokens > modelCaps.MaxOutputTokens) {
					clamped := *req
					clamped.MaxTokens = modelCaps.MaxOutputTokens
					req = &clamped
				}
			}
		}

		return backend.StreamTurn(ctx, req)
	}
	return nil, fmt.Errorf("no backend supports model %q", req.Model)
}
