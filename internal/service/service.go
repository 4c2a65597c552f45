// Package service implements the chat orchestration: session resolution,
// guarded upstream calls, streaming and persistence.
package service

import (
	"time"

	"github.com/xiaot623/gogo/gateway/internal/adapter/llm"
	"github.com/xiaot623/gogo/gateway/internal/config"
	"github.com/xiaot623/gogo/gateway/internal/policy"
	"github.com/xiaot623/gogo/gateway/internal/repository"
	"github.com/xiaot623/gogo/gateway/internal/resilience"
)

// persistTimeout bounds writes that must outlive a cancelled request.
const persistTimeout = 5 * time.Second

type Service struct {
	store        store.Store
	llmClient    llm.Client
	guard        *resilience.Guard
	config       *config.Config
	policyEngine *policy.Engine
}

// New creates the service. guard must be shared by every caller of the same
// upstream target. policyEngine may be nil to admit every request.
func New(store store.Store, llmClient llm.Client, guard *resilience.Guard, cfg *config.Config, policyEngine *policy.Engine) *Service {
	return &Service{
		store:        store,
		llmClient:    llmClient,
		guard:        guard,
		config:       cfg,
		policyEngine: policyEngine,
	}
}

// NewGuard builds the upstream guard from configuration.
func NewGuard(cfg *config.Config) *resilience.Guard {
	return resilience.NewGuard("upstream", resilience.GuardConfig{
		Timeout:          cfg.UpstreamTimeout,
		MaxRetries:       cfg.RetryMax,
		BaseDelay:        cfg.RetryBaseDelay,
		FailureThreshold: cfg.BreakerThreshold,
		ResetInterval:    cfg.BreakerReset,
	})
}
