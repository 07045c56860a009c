package assistant

import (
	"context"

	"github.com/ktwhotel/concierge/pkg/logging"
)

// FailoverLLMClient retries a failed completion on a secondary provider.
type FailoverLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFailoverLLMClient wraps primary. A nil fallback disables failover.
func NewFailoverLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FailoverLLMClient {
	if primary == nil {
		panic("assistant: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverLLMClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FailoverLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	c.logger.Warn("primary LLM failed, attempting fallback", "error", err, "fallback_available", c.fallback != nil)
	if c.fallback == nil {
		return LLMResponse{}, err
	}

	resp, fbErr := c.fallback.Complete(ctx, req)
	if fbErr != nil {
		c.logger.Error("fallback LLM also failed", "primary_error", err, "fallback_error", fbErr)
		return LLMResponse{}, fbErr
	}
	return resp, nil
}
