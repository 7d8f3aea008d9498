// Package telemetry turns insight signals into logs and Prometheus metrics.
package telemetry

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/zoobzio/capitan"

	"github.com/veranima/insight"
)

// NewLogger builds the process logger from level and format settings.
// Unknown levels fall back to info; any format but "text" logs JSON.
func NewLogger(level, format string) *logrus.Logger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

var stringFields = []struct {
	name string
	from func(*capitan.Event) (string, bool)
}{
	{"request_id", insight.RequestIDKey.From},
	{"mode", insight.ModeKey.From},
	{"stage", insight.StageKey.From},
	{"provider", insight.ProviderKey.From},
	{"model", insight.ModelKey.From},
	{"response_id", insight.ResponseIDKey.From},
	{"finish_reason", insight.ResponseFinishReasonKey.From},
	{"api_error_type", insight.APIErrorTypeKey.From},
	{"error", insight.ErrorKey.From},
}

var intFields = []struct {
	name string
	from func(*capitan.Event) (int, bool)
}{
	{"input_length", insight.InputLengthKey.From},
	{"output_length", insight.OutputLengthKey.From},
	{"fragments", insight.FragmentCountKey.From},
	{"prompt_tokens", insight.PromptTokensKey.From},
	{"completion_tokens", insight.CompletionTokensKey.From},
	{"total_tokens", insight.TotalTokensKey.From},
	{"duration_ms", insight.DurationMsKey.From},
	{"http_status", insight.HTTPStatusCodeKey.From},
}

// LogBridge writes one structured entry per insight signal.
type LogBridge struct {
	log  logrus.FieldLogger
	stop func()
}

// NewLogBridge starts forwarding signals to log until Close is called.
func NewLogBridge(log logrus.FieldLogger) *LogBridge {
	b := &LogBridge{log: log}
	observer := capitan.Observe(b.handle)
	b.stop = func() { observer.Close() }
	return b
}

// Close stops forwarding.
func (b *LogBridge) Close() {
	b.stop()
}

func (b *LogBridge) handle(_ context.Context, e *capitan.Event) {
	signal := e.Signal()
	if !strings.HasPrefix(signal.Name(), "insight.") {
		return
	}

	entry := b.log.WithFields(eventFields(e))
	msg := signal.Name()

	switch signal {
	case insight.RequestFailed, insight.StreamFailed, insight.ProviderCallFailed:
		entry.Error(msg)
	case insight.ResponseMalformed:
		entry.Warn(msg)
	case insight.RequestStarted, insight.StreamStarted, insight.ProviderCallStarted:
		entry.Debug(msg)
	default:
		entry.Info(msg)
	}
}

func eventFields(e *capitan.Event) logrus.Fields {
	fields := logrus.Fields{}
	for _, f := range stringFields {
		if v, ok := f.from(e); ok && v != "" {
			fields[f.name] = v
		}
	}
	for _, f := range intFields {
		if v, ok := f.from(e); ok {
			fields[f.name] = v
		}
	}
	return fields
}
