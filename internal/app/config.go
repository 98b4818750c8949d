package app

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
	"github.com/nutrilog/nutrilog-backend/internal/utils"
)

type Config struct {
	Port         string
	AllowOrigins []string

	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	OpenAIBaseURL        string
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAITimeout        time.Duration
	OpenAIMaxRetries     int
	OpenAIBackoffInitial time.Duration
	OpenAIBackoffCap     time.Duration

	// Per-1K-token prices in minor currency units (e.g. cents).
	PromptPricePer1K     decimal.Decimal
	CompletionPricePer1K decimal.Decimal
	PriceCurrency        string

	// Macro verification tolerance in percent; deltas strictly above it
	// flag the item for review.
	MacroTolerancePct decimal.Decimal

	// Minimum model confidence for keeping a product link.
	DefaultMatchThreshold decimal.Decimal

	RedisAddr       string
	RunEventChannel string
}

func LoadConfig(log *logger.Logger) Config {
	allowOrigins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log), ",")
	for i := range allowOrigins {
		allowOrigins[i] = strings.TrimSpace(allowOrigins[i])
	}

	return Config{
		Port:         utils.GetEnv("PORT", "8080", log),
		AllowOrigins: allowOrigins,

		JWTSecretKey:    utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),
		AccessTokenTTL:  time.Duration(utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)) * time.Second,
		RefreshTokenTTL: time.Duration(utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)) * time.Second,

		OpenAIBaseURL:        utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", log),
		OpenAIAPIKey:         utils.GetEnv("OPENAI_API_KEY", "", log),
		OpenAIModel:          utils.GetEnv("OPENAI_MODEL", "gpt-4o-mini", log),
		OpenAITimeout:        time.Duration(utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 60, log)) * time.Second,
		OpenAIMaxRetries:     utils.GetEnvAsInt("OPENAI_MAX_RETRIES", 3, log),
		OpenAIBackoffInitial: time.Duration(utils.GetEnvAsInt("OPENAI_BACKOFF_INITIAL_MS", 1000, log)) * time.Millisecond,
		OpenAIBackoffCap:     time.Duration(utils.GetEnvAsInt("OPENAI_BACKOFF_CAP_MS", 30000, log)) * time.Millisecond,

		PromptPricePer1K:     decimalEnv("OPENAI_PROMPT_PRICE_PER_1K", "0.015", log),
		CompletionPricePer1K: decimalEnv("OPENAI_COMPLETION_PRICE_PER_1K", "0.06", log),
		PriceCurrency:        utils.GetEnv("OPENAI_PRICE_CURRENCY", "USD", log),

		MacroTolerancePct:     decimalEnv("MACRO_TOLERANCE_PCT", "15", log),
		DefaultMatchThreshold: decimalEnv("DEFAULT_MATCH_THRESHOLD", "0.6", log),

		RedisAddr:       utils.GetEnv("REDIS_ADDR", "", log),
		RunEventChannel: utils.GetEnv("RUN_EVENT_CHANNEL", "analysis-runs", log),
	}
}

func decimalEnv(key, defaultVal string, log *logger.Logger) decimal.Decimal {
	raw := utils.GetEnv(key, defaultVal, log)
	value, err := decimal.NewFromString(raw)
	if err != nil {
		log.Warn("Invalid decimal env value, using default", "key", key, "value", raw, "default", defaultVal)
		value, _ = decimal.NewFromString(defaultVal)
	}
	return value
}
