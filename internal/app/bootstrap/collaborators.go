package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ktwhotel/concierge/internal/assistant"
	appconfig "github.com/ktwhotel/concierge/internal/config"
	"github.com/ktwhotel/concierge/internal/events"
	"github.com/ktwhotel/concierge/internal/line"
	"github.com/ktwhotel/concierge/internal/notify"
	"github.com/ktwhotel/concierge/internal/pms"
	"github.com/ktwhotel/concierge/internal/worker"
	"github.com/ktwhotel/concierge/pkg/logging"
)

const memoryQueueBuffer = 256

// BuildPMS returns the HTTP client for PMS_BASE_URL, or a seeded in-memory
// backend for local runs.
func BuildPMS(cfg *appconfig.Config, logger *logging.Logger) pms.Service {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.PMSBaseURL) == "" {
		logger.Warn("no PMS configured; using in-memory demo inventory")
		return pms.NewMemoryService(pms.DemoAvailability(), nil)
	}
	logger.Info("using PMS backend", "base_url", cfg.PMSBaseURL)
	return pms.NewClient(cfg.PMSBaseURL, cfg.PMSAPIKey, cfg.PMSTimeout, logger)
}

// BuildMessenger returns the LINE client as both messenger and profile
// source, or a logging stand-in when no channel token is set.
func BuildMessenger(cfg *appconfig.Config, logger *logging.Logger) (worker.Messenger, worker.ProfileSource) {
	if strings.TrimSpace(cfg.LineChannelToken) == "" {
		logger.Warn("LINE_CHANNEL_TOKEN not set; replies will only be logged")
		return worker.NewLogMessenger(logger), nil
	}
	client, err := line.NewClient(cfg.LineChannelToken, cfg.LineAPIBaseURL)
	if err != nil {
		logger.Error("LINE client unavailable; replies will only be logged", "error", err)
		return worker.NewLogMessenger(logger), nil
	}
	return client, client
}

// buildAdvisor selects the AI fallback. Missing credentials disable it
// rather than failing startup.
func (r *Runtime) buildAdvisor(ctx context.Context) (*assistant.Fallback, error) {
	cfg := r.Config
	logger := r.Logger.With("ai_provider", cfg.AIProvider)

	var llm assistant.LLMClient
	switch cfg.AIProvider {
	case "", "none":
		logger.Info("AI fallback disabled")
		return nil, nil
	case "gemini":
		gemini := r.buildGemini(ctx, logger)
		if gemini == nil {
			return nil, nil
		}
		llm = gemini
	case "bedrock":
		bedrock, err := r.buildBedrock(ctx, logger)
		if err != nil || bedrock == nil {
			return nil, err
		}
		llm = bedrock
	case "failover":
		gemini := r.buildGemini(ctx, logger)
		bedrock, err := r.buildBedrock(ctx, logger)
		if err != nil {
			return nil, err
		}
		switch {
		case gemini != nil && bedrock != nil:
			llm = assistant.NewFailoverLLMClient(gemini, bedrock, r.Logger)
		case gemini != nil:
			llm = gemini
		case bedrock != nil:
			llm = bedrock
		default:
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("bootstrap: unknown AI provider %q", cfg.AIProvider)
	}

	logger.Info("AI fallback enabled")
	return assistant.NewFallback(llm, r.Logger), nil
}

func (r *Runtime) buildGemini(ctx context.Context, logger *logging.Logger) *assistant.GeminiLLMClient {
	if strings.TrimSpace(r.Config.GeminiAPIKey) == "" {
		logger.Warn("GEMINI_API_KEY not set; gemini disabled")
		return nil
	}
	client, err := assistant.NewGeminiLLMClient(ctx, r.Config.GeminiAPIKey, r.Config.GeminiModel)
	if err != nil {
		logger.Error("failed to create gemini client", "error", err)
		return nil
	}
	r.closers = append(r.closers, func() { _ = client.Close() })
	return client
}

func (r *Runtime) buildBedrock(ctx context.Context, logger *logging.Logger) (*assistant.BedrockLLMClient, error) {
	model := strings.TrimSpace(r.Config.BedrockModelID)
	if model == "" {
		logger.Warn("BEDROCK_MODEL_ID not set; bedrock disabled")
		return nil, nil
	}
	awsCfg, err := r.AWS(ctx)
	if err != nil {
		return nil, err
	}
	return assistant.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), model), nil
}

// buildNotifier always returns a front-desk notifier; without a provider it
// only logs.
func (r *Runtime) buildNotifier(ctx context.Context) (*notify.FrontDesk, error) {
	cfg := r.Config
	var sender notify.EmailSender

	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "ses":
		awsCfg, err := r.AWS(ctx)
		if err != nil {
			return nil, err
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, r.Logger)
	case "sendgrid":
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, r.Logger); sg != nil {
			sender = sg
		} else {
			r.Logger.Warn("SENDGRID_API_KEY not set; front desk email will be logged only")
			sender = notify.NewStubEmailSender(r.Logger)
		}
	case "", "none", "stub":
		sender = notify.NewStubEmailSender(r.Logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown email provider %q", cfg.EmailProvider)
	}
	return notify.NewFrontDesk(sender, cfg.NotifyEmailTo, cfg.TenantID, r.Logger), nil
}

// buildProcessedStore keeps redelivery markers in Postgres when
// DATABASE_URL is set so every worker sees them.
func (r *Runtime) buildProcessedStore(ctx context.Context) (ProcessedEvents, error) {
	pool, err := r.Pool(ctx)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return events.NewMemoryProcessedStore(), nil
	}
	return events.NewProcessedStore(pool), nil
}

func (r *Runtime) buildQueue(ctx context.Context) (worker.Queue, error) {
	cfg := r.Config
	if cfg.UseMemoryQueue {
		r.Logger.Info("using in-memory job queue")
		return worker.NewMemoryQueue(memoryQueueBuffer), nil
	}
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: QUEUE_URL is required when USE_MEMORY_QUEUE=false")
	}
	awsCfg, err := r.AWS(ctx)
	if err != nil {
		return nil, err
	}
	r.Logger.Info("using SQS job queue", "queue_url", cfg.QueueURL)
	return worker.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.QueueURL), nil
}
