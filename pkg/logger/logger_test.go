package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithoutContext(t *testing.T) {
	for _, tc := range []struct {
		name          string
		expectedLevel zapcore.Level
	}{
		{
			name:          "Info",
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name:          "Debug",
			expectedLevel: zapcore.DebugLevel,
		},
		{
			name:          "Warn",
			expectedLevel: zapcore.WarnLevel,
		},
		{
			name:          "Error",
			expectedLevel: zapcore.ErrorLevel,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			observerLogger, logs := observer.New(zap.DebugLevel)
			dut := ZapLogger{zap.New(observerLogger)}
			const testMessage = "ABC"
			switch tc.name {
			case "Info":
				dut.Info(testMessage)
			case "Debug":
				dut.Debug(testMessage)
			case "Warn":
				dut.Warn(testMessage)
			case "Error":
				dut.Error(testMessage)
			default:
				t.Errorf("%s: Unknown name", tc.name)
			}
			require.Equal(t, 1, logs.Len())

			actualMessage := logs.All()[0]
			require.Equal(t, testMessage, actualMessage.Message)
			require.Empty(t, actualMessage.ContextMap())
			require.Equal(t, tc.expectedLevel, actualMessage.Level)
		})
	}
}

func TestWithContextAddsTraceID(t *testing.T) {
	observerLogger, logs := observer.New(zap.DebugLevel)
	dut := ZapLogger{zap.New(observerLogger)}

	dut.InfoWithContext(context.Background(), "no span")
	require.Empty(t, logs.All()[0].ContextMap())

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	dut.WarnWithContext(ctx, "with span", zap.String("user_id", "1"))
	entry := logs.All()[1]
	require.Equal(t, zapcore.WarnLevel, entry.Level)
	require.Equal(t, map[string]interface{}{
		"user_id":  "1",
		"trace_id": span.SpanContext().TraceID().String(),
	}, entry.ContextMap())
}

func TestWithFields(t *testing.T) {
	observerLogger, logs := observer.New(zap.DebugLevel)
	logger := ZapLogger{zap.New(observerLogger)}

	const testMessage = "ABC"

	newLogger := logger.With(
		zap.String("run_id", "1234"),
	)

	newLogger.Info(testMessage)

	// Check that child message carries the context fields
	childMessage := logs.All()[0]
	require.Equal(t, map[string]interface{}{"run_id": "1234"}, childMessage.ContextMap())

	// Check that parent message does not carry the context fields
	logger.Info(testMessage)
	parentMessage := logs.All()[1]
	require.Empty(t, parentMessage.ContextMap())
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger("text", "verbose", "Unix")
	require.ErrorContains(t, err, "unknown log level")

	l, err := NewLogger("json", "none", "Unix")
	require.NoError(t, err)
	require.NotNil(t, l)

	for _, level := range []string{"debug", "info", "warn", "error"} {
		l, err = NewLogger("json", level, "ISO8601")
		require.NoError(t, err)
		require.True(t, l.Core().Enabled(zapcore.ErrorLevel))
	}

	require.Panics(t, func() {
		MustNewLogger("text", "loud", "Unix")
	})
}

func TestObserverLogger(t *testing.T) {
	l, logs := NewObserverLogger("info")
	l.Debug("hidden")
	l.Info("shown")
	require.Equal(t, 1, logs.Len())
	require.Equal(t, 1, logs.FilterMessage("shown").Len())
}
