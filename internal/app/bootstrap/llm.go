package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/creditsales-ai-platform/internal/config"
	"github.com/wolfman30/creditsales-ai-platform/internal/llm"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// BuildLLMClient wires Bedrock as the primary model and Gemini as the
// fallback. Either may be missing; with neither configured it returns nil and
// the language enrichments answer with their defaults.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (llm.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var primary, fallback llm.Client
	if model := strings.TrimSpace(cfg.BedrockModelID); model != "" {
		primary = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), model)
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, err
		}
		fallback = gemini
	}

	switch {
	case primary != nil:
		logger.Info("llm configured", "primary", "bedrock", "model", cfg.BedrockModelID, "fallback", fallback != nil)
		return llm.NewFallbackClient(primary, fallback, cfg.LLMTimeout, logger), nil
	case fallback != nil:
		logger.Info("llm configured", "primary", "gemini", "model", cfg.GeminiModelID)
		return llm.NewFallbackClient(fallback, nil, cfg.LLMTimeout, logger), nil
	default:
		logger.Warn("no llm configured; language enrichments use defaults")
		return nil, nil
	}
}
