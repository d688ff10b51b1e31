package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "github.com/user/mlbot"

// MetricsConfig controls the metric exporter.
type MetricsConfig struct {
	Enabled  bool
	File     string
	Interval time.Duration
	Version  string
}

// Metrics holds the bot's instruments. A nil *Metrics records nothing.
type Metrics struct {
	refreshes     metric.Int64Counter
	commands      metric.Int64Counter
	notifications metric.Int64Counter
	messages      metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	refreshes, err := meter.Int64Counter("mlbot.token.refreshes",
		metric.WithDescription("Upstream token refresh attempts"))
	if err != nil {
		return nil, fmt.Errorf("create refresh counter: %w", err)
	}
	commands, err := meter.Int64Counter("mlbot.commands",
		metric.WithDescription("Chat commands handled"))
	if err != nil {
		return nil, fmt.Errorf("create command counter: %w", err)
	}
	notifications, err := meter.Int64Counter("mlbot.notifications",
		metric.WithDescription("Marketplace notifications processed"))
	if err != nil {
		return nil, fmt.Errorf("create notification counter: %w", err)
	}
	messages, err := meter.Int64Counter("mlbot.messages.sent",
		metric.WithDescription("Outbound chat messages"))
	if err != nil {
		return nil, fmt.Errorf("create message counter: %w", err)
	}
	return &Metrics{
		refreshes:     refreshes,
		commands:      commands,
		notifications: notifications,
		messages:      messages,
	}, nil
}

// SetupMetrics builds a meter provider exporting to a rotating file.
// When disabled it returns instruments backed by a no-op meter.
// The shutdown function flushes pending data.
func SetupMetrics(ctx context.Context, cfg MetricsConfig) (*Metrics, func(context.Context) error, error) {
	if !cfg.Enabled {
		m, err := NewMetrics(noop.NewMeterProvider().Meter(meterName))
		return m, func(context.Context) error { return nil }, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("mlbot"),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create metrics dir: %w", err)
	}
	metricsFile := newRotatingFile(cfg.File)

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		return nil, nil, fmt.Errorf("create metric exporter: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	m, err := NewMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		err := mp.Shutdown(ctx)
		if cerr := closeQuietly(metricsFile); err == nil {
			err = cerr
		}
		return err
	}
	return m, shutdown, nil
}

func closeQuietly(c io.Closer) error {
	if err := c.Close(); err != nil {
		slog.Warn("failed to close metrics file", "error", err)
		return err
	}
	return nil
}

// RecordRefresh counts a token refresh with outcome "ok" or "error".
func (m *Metrics) RecordRefresh(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCommand counts a handled chat command.
func (m *Metrics) RecordCommand(ctx context.Context, command string) {
	if m == nil {
		return
	}
	m.commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// RecordNotification counts a processed notification.
func (m *Metrics) RecordNotification(ctx context.Context, topic, outcome string) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("outcome", outcome),
	))
}

// RecordMessage counts an outbound message with outcome "ok" or "error".
func (m *Metrics) RecordMessage(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Outcome maps an error to the "ok"/"error" attribute value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
