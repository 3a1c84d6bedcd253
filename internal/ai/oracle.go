package ai

import (
	"context"
	"errors"
	"strings"

	"upsell-recommender/internal/config"
)

var (
	ErrNoOracleConfigured = errors.New("no ranking oracle configured: set LLM_USE_SDK, LLM_API_KEY or LLM_GATEWAY_KEY")
	ErrEmptyResponse      = errors.New("oracle returned an empty response")
)

// RankingOracle turns a prompt into unstructured text. Calls may fail or time out
// and are never retried by callers.
type RankingOracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Backend() string
}

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Backend identifies an oracle implementation.
type Backend string

const (
	BackendSDK     Backend = "sdk"
	BackendDirect  Backend = "direct"
	BackendGateway Backend = "gateway"
)

// SelectBackend applies the priority SDK flag > dedicated API key > gateway key.
func SelectBackend(cfg config.LLMConfig) (Backend, error) {
	switch {
	case cfg.UseSDK:
		return BackendSDK, nil
	case strings.TrimSpace(cfg.APIKey) != "":
		return BackendDirect, nil
	case strings.TrimSpace(cfg.GatewayKey) != "":
		return BackendGateway, nil
	default:
		return "", ErrNoOracleConfigured
	}
}

// Client bundles the oracle and embedder of the selected backend.
type Client struct {
	Oracle   RankingOracle
	Embedder Embedder
	Backend  Backend
}

// New builds the backend chosen by SelectBackend. The oracle is wrapped in a
// circuit breaker.
func New(cfg config.LLMConfig) (*Client, error) {
	backend, err := SelectBackend(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout()

	var (
		oracle   RankingOracle
		embedder Embedder
	)
	switch backend {
	case BackendSDK:
		sdk := NewSDKClient(SDKConfig{
			APIKey:         firstNonEmpty(cfg.SDKAPIKey, cfg.APIKey, cfg.GatewayKey),
			BaseURL:        cfg.SDKBaseURL,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		oracle, embedder = sdk, sdk
	case BackendDirect:
		http := NewHTTPOracle(BackendDirect, ChatConfig{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
		}, timeout)
		oracle, embedder = http, http
	case BackendGateway:
		http := NewHTTPOracle(BackendGateway, ChatConfig{
			BaseURL:        firstNonEmpty(cfg.GatewayURL, cfg.BaseURL),
			APIKey:         cfg.GatewayKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
		}, timeout)
		oracle, embedder = http, http
	}

	return &Client{
		Oracle:   NewBreakerOracle(oracle, DefaultBreakerSettings()),
		Embedder: embedder,
		Backend:  backend,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Unavailable returns an oracle that fails every call with cause. It stands in
// when no backend is configured so callers take their fallback paths.
func Unavailable(cause error) RankingOracle {
	return unavailableOracle{cause: cause}
}

type unavailableOracle struct {
	cause error
}

func (unavailableOracle) Backend() string { return "none" }

func (o unavailableOracle) Complete(context.Context, string) (string, error) {
	return "", o.cause
}
