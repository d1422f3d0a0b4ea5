package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newapi-sidecar/sidecar/internal/config"
)

func TestNewSetsAddrFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Port = "8099"
	s := New(cfg, http.NewServeMux(), zerolog.Nop())
	assert.Equal(t, ":8099", s.Addr())
}

func TestShutdownOnUnstartedServerSucceeds(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Port = "0"
	s := New(cfg, http.NewServeMux(), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestReadyAndHealthAreTrue(t *testing.T) {
	cfg := &config.Config{}
	s := New(cfg, http.NewServeMux(), zerolog.Nop())
	assert.True(t, s.Ready())
	assert.True(t, s.Health())
}

func TestUptimeIsPositive(t *testing.T) {
	time.Sleep(time.Millisecond)
	assert.Greater(t, Uptime(), time.Duration(0))
}
