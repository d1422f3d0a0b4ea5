package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBuildPromptIncludesFeatures(t *testing.T) {
	f := &Features{UserID: 7, Username: "alice", RequestsPerMinute: 12.5, UniqueIPs: 3}
	prompt := buildPrompt(f, "")
	assert.Contains(t, prompt, "alice")
	assert.Contains(t, prompt, "id=7")
}

func TestBuildPromptPrependsCustomPrompt(t *testing.T) {
	f := &Features{UserID: 1, Username: "bob"}
	prompt := buildPrompt(f, "Flag only egregious abuse.")
	assert.Contains(t, prompt, "Flag only egregious abuse.")
	assert.Contains(t, prompt, "bob")
}

func TestClientHealthyByDefault(t *testing.T) {
	c := NewClient("http://localhost", "key", "gpt-4", "", time.Minute, 3, zerolog.Nop())
	assert.True(t, c.Healthy())
}

func TestClientCooldownAfterFailureLimit(t *testing.T) {
	c := NewClient("http://localhost", "key", "gpt-4", "", time.Hour, 2, zerolog.Nop())
	c.recordFailure()
	assert.True(t, c.Healthy())
	c.recordFailure()
	assert.False(t, c.Healthy())
}

func TestClientResetAPIHealthClearsCooldown(t *testing.T) {
	c := NewClient("http://localhost", "key", "gpt-4", "", time.Hour, 1, zerolog.Nop())
	c.recordFailure()
	assert.False(t, c.Healthy())
	c.ResetAPIHealth()
	assert.True(t, c.Healthy())
}

func TestClientSuccessResetsFailureCount(t *testing.T) {
	c := NewClient("http://localhost", "key", "gpt-4", "", time.Hour, 2, zerolog.Nop())
	c.recordFailure()
	c.recordSuccess()
	c.recordFailure()
	assert.True(t, c.Healthy(), "single failure after a reset should not trip the limit-of-2 cooldown")
}
