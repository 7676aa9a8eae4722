package ai

import (
	"context"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator validates AI provider configurations by creating the
// service and pinging it. Used by the setup wizard.
type ConfigValidator struct{}

// NewConfigValidator creates a new AI config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateEmbedding validates an embedding configuration by pinging the provider.
func (v *ConfigValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	if config == nil {
		return nil
	}
	svc, err := CreateEmbeddingService(*config)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()
	return ping(context.Background(), svc.Ping)
}

// ValidateLLM validates an LLM configuration by pinging the provider.
func (v *ConfigValidator) ValidateLLM(config *domain.LLMSettings) error {
	if config == nil {
		return nil
	}
	svc, err := CreateLLMService(*config)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()
	return ping(context.Background(), svc.Ping)
}
