package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pizzeria-system/internal/config"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{}, "order-service")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupWithEndpoint(t *testing.T) {
	cfg := config.TracingConfig{
		Endpoint: "127.0.0.1:4318",
		URLPath:  "/v1/traces",
		Insecure: true,
		Timeout:  100 * time.Millisecond,
	}
	shutdown, err := Setup(context.Background(), cfg, "order-service")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// nothing was recorded, so flushing does not need a collector
	require.NoError(t, shutdown(ctx))
}
