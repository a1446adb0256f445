package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsPopulateWorkflowPolicy(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 2, cfg.Assignment.MaxActiveTasks)
	assert.Equal(t, 100.0, cfg.Acceptance.AcceptThreshold)
	assert.Equal(t, 90.0, cfg.Acceptance.ProvisionalThreshold)
	assert.Equal(t, 70.0, cfg.Acceptance.ConditionalThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestOverridesFromEnvironment(t *testing.T) {
	t.Setenv("ASSIGNMENT_MAX_ACTIVE_TASKS", "3")
	t.Setenv("ACCEPTANCE_PROVISIONAL_THRESHOLD", "85")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("CACHE_TTL", "not-a-duration")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, 3, cfg.Assignment.MaxActiveTasks)
	assert.Equal(t, 85.0, cfg.Acceptance.ProvisionalThreshold)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
}

func TestSplitAndTrimEmpty(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Empty(t, splitAndTrim(" , "))
}
