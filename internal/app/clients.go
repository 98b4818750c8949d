package app

import (
	openaiclient "github.com/nutrilog/nutrilog-backend/internal/clients/openai"
	redisclient "github.com/nutrilog/nutrilog-backend/internal/clients/redis"
	"github.com/nutrilog/nutrilog-backend/internal/logger"
)

type Clients struct {
	OpenAI *openaiclient.Client
	Events redisclient.RunEventBus
}

func wireClients(log *logger.Logger, cfg Config) Clients {
	log.Info("Wiring clients...")

	openAI := openaiclient.NewClient(openaiclient.Config{
		BaseURL:        cfg.OpenAIBaseURL,
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.OpenAIModel,
		Timeout:        cfg.OpenAITimeout,
		MaxRetries:     cfg.OpenAIMaxRetries,
		BackoffInitial: cfg.OpenAIBackoffInitial,
		BackoffCap:     cfg.OpenAIBackoffCap,
	}, log)

	// The event bus is optional; without redis the run pipeline still
	// works, status events are just not published.
	var events redisclient.RunEventBus
	if cfg.RedisAddr != "" {
		bus, err := redisclient.NewRunEventBus(log, cfg.RedisAddr, cfg.RunEventChannel)
		if err != nil {
			log.Warn("Run event bus unavailable, continuing without events", "error", err)
		} else {
			events = bus
		}
	}

	return Clients{
		OpenAI: openAI,
		Events: events,
	}
}
