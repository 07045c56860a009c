package main

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/ktwhotel/concierge/internal/app/bootstrap"
	appconfig "github.com/ktwhotel/concierge/internal/config"
	"github.com/ktwhotel/concierge/internal/line"
	"github.com/ktwhotel/concierge/pkg/logging"
)

const webhookPath = "/webhooks/line"

// webhookProcessor is satisfied by *line.WebhookHandler.
type webhookProcessor interface {
	Process(ctx context.Context, body []byte, signature string) error
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if cfg.UseMemoryQueue {
		logger.Warn("USE_MEMORY_QUEUE is set; jobs enqueued by this function are never consumed")
	}

	rt, err := bootstrap.Build(context.Background(), cfg, logger)
	if err != nil {
		panic(err)
	}
	webhook := rt.Webhook()

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, webhook, logger, evt)
	})
}

func handle(ctx context.Context, webhook webhookProcessor, logger *logging.Logger, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}
	if path != webhookPath {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}
	if method != http.MethodPost {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	err = webhook.Process(ctx, body, headerValue(evt.Headers, "x-line-signature"))
	switch {
	case errors.Is(err, line.ErrInvalidSignature):
		logger.Warn("line webhook rejected: bad signature", "source_ip", evt.RequestContext.HTTP.SourceIP)
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusUnauthorized}, nil
	case err != nil:
		logger.Warn("line webhook rejected", "error", err)
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest}, nil
	}
	return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK}, nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
