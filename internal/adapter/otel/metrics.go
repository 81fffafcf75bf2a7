package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "stratforge"

// Metrics holds all StratForge metric instruments.
type Metrics struct {
	UpgradesStarted     metric.Int64Counter
	UpgradesCompleted   metric.Int64Counter
	StageFailures       metric.Int64Counter
	ScoreRecalculations metric.Int64Counter
	BackgroundFailures  metric.Int64Counter
	StageDuration       metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.UpgradesStarted, err = meter.Int64Counter("stratforge.upgrades.started",
		metric.WithDescription("Number of upgrade runs started"))
	if err != nil {
		return nil, err
	}

	m.UpgradesCompleted, err = meter.Int64Counter("stratforge.upgrades.completed",
		metric.WithDescription("Number of upgrade runs finished, by completeness"))
	if err != nil {
		return nil, err
	}

	m.StageFailures, err = meter.Int64Counter("stratforge.stage.failures",
		metric.WithDescription("Number of failed pillar stages"))
	if err != nil {
		return nil, err
	}

	m.ScoreRecalculations, err = meter.Int64Counter("stratforge.scores.recalculated",
		metric.WithDescription("Number of score recalculations, by trigger"))
	if err != nil {
		return nil, err
	}

	m.BackgroundFailures, err = meter.Int64Counter("stratforge.background.failures",
		metric.WithDescription("Number of failed background tasks"))
	if err != nil {
		return nil, err
	}

	m.StageDuration, err = meter.Float64Histogram("stratforge.stage.duration_seconds",
		metric.WithDescription("Pillar stage duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RegisterRuntimeGauges reports open WebSocket connections and dropped log
// records on every collection. Either source may be nil.
func RegisterRuntimeGauges(wsConns func() int, logDrops func() int64) (metric.Registration, error) {
	meter := otel.Meter(meterName)

	conns, err := meter.Int64ObservableGauge("stratforge.ws.connections",
		metric.WithDescription("Open WebSocket connections"))
	if err != nil {
		return nil, err
	}
	drops, err := meter.Int64ObservableCounter("stratforge.log.dropped",
		metric.WithDescription("Log records dropped by the async handler"))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if wsConns != nil {
			o.ObserveInt64(conns, int64(wsConns()))
		}
		if logDrops != nil {
			o.ObserveInt64(drops, logDrops())
		}
		return nil
	}, conns, drops)
}
