package services

import (
	"context"
	"time"
)

// MetricsRecorder is satisfied by *aws_pkg.MetricsClient.
type MetricsRecorder interface {
	IsEnabled() bool
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordCountN(ctx context.Context, metricName string, n int, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
}

// emit runs fn off the request path with its own timeout.
func emit(metrics MetricsRecorder, fn func(ctx context.Context, m MetricsRecorder)) {
	if metrics == nil || !metrics.IsEnabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		fn(ctx, metrics)
	}()
}
