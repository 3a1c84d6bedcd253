package bootstrap

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upsell-recommender/internal/ai"
	"upsell-recommender/internal/config"
)

func TestOracleDegradesWithoutBackend(t *testing.T) {
	a := &App{Config: &config.Config{}, Log: zerolog.Nop()}

	oracle, embedder := a.oracle()

	require.NotNil(t, oracle)
	assert.Nil(t, embedder)
	assert.Equal(t, "none", oracle.Backend())
	_, err := oracle.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, ai.ErrNoOracleConfigured)
}

func TestOracleUsesConfiguredBackend(t *testing.T) {
	a := &App{Config: &config.Config{LLM: config.LLMConfig{
		GatewayKey:     "g",
		GatewayURL:     "http://gateway.local/v1",
		Model:          "m",
		TimeoutSeconds: 5,
	}}, Log: zerolog.Nop()}

	oracle, embedder := a.oracle()

	require.NotNil(t, oracle)
	assert.NotNil(t, embedder)
	assert.Equal(t, "gateway", oracle.Backend())
}
