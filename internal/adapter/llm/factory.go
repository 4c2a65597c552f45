package llm

import (
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/config"
)

// NewClient creates the upstream client selected by cfg.Driver.
func NewClient(cfg config.UpstreamConfig) Client {
	switch cfg.Driver {
	case config.DriverMock:
		log.Info().Msg("mock upstream driver selected, no provider calls will be made")
		return NewMockClient()
	case config.DriverOpenAI:
		log.Info().Str("model", cfg.Model).Msg("using openai-go upstream driver")
		return NewOpenAIClient(cfg)
	default:
		log.Info().Str("model", cfg.Model).Str("base_url", cfg.BaseURL).Msg("using OpenAI-compatible upstream driver")
		return NewCompatClient(cfg)
	}
}
