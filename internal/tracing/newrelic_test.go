package tracing

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/distribo/services/recouvrement/config"
)

func TestNewTracerWithoutLicenseKey(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, tracer)
}

// A disabled tracer stands in whenever agent initialization fails, so its
// whole call surface must be safe to use.
func TestDisabledTracerIsSafe(t *testing.T) {
	tracer := &NewRelicTracer{}

	require.NotPanics(t, func() {
		txn := tracer.StartTransaction("no-op")
		span := tracer.StartSpan("segment", txn)
		span.End()
		tracer.RecordError(txn, errors.New("ignored"))
		tracer.AddAttribute(txn, "key", "value")
		tracer.EndTransaction(txn)
	})
	require.Nil(t, tracer.StartTransaction("no-op"))
}
