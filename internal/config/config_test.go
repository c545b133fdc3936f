package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		original, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, original)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	clearEnv(t, "DEFAULT_MODE", "PUBSUB_PROJECT_ID", "PUBSUB_SUBSCRIPTION_ID")
	os.Setenv("PUBSUB_PROJECT_ID", "proj")
	os.Setenv("PUBSUB_SUBSCRIPTION_ID", "sub")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeDemo, cfg.DefaultMode)
	assert.Equal(t, 3, cfg.Coordinator.GlobalConcurrency)
	assert.Equal(t, 30, cfg.Coordinator.TimeoutSeconds)
	assert.Equal(t, 60, cfg.Scheduler.PollIntervalSeconds)
	assert.Equal(t, 10, cfg.Ledger.SlotLimit)
	assert.Equal(t, 2, cfg.Ledger.SectorMaxPositions)
	assert.Equal(t, 8090, cfg.Health.Port)
}

func TestLoad_RealModeRequiresCredentials(t *testing.T) {
	clearEnv(t, "DEFAULT_MODE", "PUBSUB_PROJECT_ID", "PUBSUB_SUBSCRIPTION_ID", "KR_BROKER_API_KEY", "US_BROKER_API_KEY")
	os.Setenv("DEFAULT_MODE", "real")
	os.Setenv("PUBSUB_PROJECT_ID", "proj")
	os.Setenv("PUBSUB_SUBSCRIPTION_ID", "sub")

	_, err := Load()
	assert.Error(t, err)

	os.Setenv("KR_BROKER_API_KEY", "k")
	os.Setenv("US_BROKER_API_KEY", "u")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeReal, cfg.DefaultMode)
}

func TestLoad_RequiresPubSubConfig(t *testing.T) {
	clearEnv(t, "DEFAULT_MODE", "PUBSUB_PROJECT_ID", "PUBSUB_SUBSCRIPTION_ID")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_RejectsUnknownMode(t *testing.T) {
	cfg := &Config{
		DefaultMode: "bogus",
		PubSub:      PubSubConfig{ProjectID: "p", SubscriptionID: "s"},
		Coordinator: CoordinatorConfig{GlobalConcurrency: 1},
	}
	assert.Error(t, cfg.Validate())
}

func TestCoordinatorConfig_Timeout(t *testing.T) {
	c := CoordinatorConfig{TimeoutSeconds: 30}
	assert.Equal(t, int64(30), c.Timeout().Nanoseconds()/1e9)
}
