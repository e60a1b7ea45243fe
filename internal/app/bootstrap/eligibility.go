package bootstrap

import (
	"context"
	"fmt"
	"strings"

	appconfig "github.com/wolfman30/creditsales-ai-platform/internal/config"
	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility/fnb"
	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility/gaso"
	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// BuildEligibility wires the configured credit providers, FNB first, behind
// the orchestrator and its circuit breaker.
func BuildEligibility(ctx context.Context, cfg *appconfig.Config, emitter events.Emitter, m *metrics.ConversationMetrics, logger *logging.Logger) (*eligibility.Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var providers []eligibility.Provider
	if strings.TrimSpace(cfg.FNBBaseURL) != "" {
		client, err := fnb.New(fnb.Config{
			BaseURL: cfg.FNBBaseURL,
			APIKey:  cfg.FNBAPIKey,
			Timeout: cfg.ProviderTimeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, client)
	} else {
		logger.Warn("fnb provider not configured")
	}
	if strings.TrimSpace(cfg.GASODatasetURL) != "" {
		client, err := gaso.New(ctx, gaso.Config{
			TokenURL:     cfg.GASOTokenURL,
			ClientID:     cfg.GASOClientID,
			ClientSecret: cfg.GASOClientSecret,
			DatasetURL:   cfg.GASODatasetURL,
			Segment:      cfg.GASOSegmentName,
			Timeout:      cfg.ProviderTimeout,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, client)
	} else {
		logger.Warn("gaso provider not configured")
	}

	testIDs, err := eligibility.ParseTestIdentities(cfg.TestIdentitiesJSON)
	if err != nil {
		return nil, err
	}
	health := eligibility.NewHealthTracker(eligibility.WithBlockTTL(cfg.ProviderBlockTTL))
	return eligibility.NewOrchestrator(providers, health, emitter, logger,
		eligibility.WithProviderTimeout(cfg.ProviderTimeout),
		eligibility.WithTestIdentities(testIDs),
		eligibility.WithMetrics(m),
	)
}
