package driven

import "context"

// ModelLister is implemented by gateways whose provider can enumerate the
// models it serves.
type ModelLister interface {
	// ListModels returns the model names the provider offers.
	ListModels(ctx context.Context) ([]string, error)
}
