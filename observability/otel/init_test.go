package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "escrowd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret ,bad, =empty,tenant=escrow")
	require.Equal(t, map[string]string{"api-key": "secret", "tenant": "escrow"}, headers)
}
