package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PostsExported = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channel_loader_posts_exported_total",
		Help: "Выгруженные посты",
	})
	CommentsExported = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channel_loader_comments_exported_total",
		Help: "Выгруженные комментарии",
	})
	FloodWaits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_loader_flood_waits_total",
		Help: "Ожидания FLOOD_WAIT по методам MTProto",
	}, []string{"operation"})
	FloodWaitSeconds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channel_loader_flood_wait_seconds_total",
		Help: "Суммарное время ожидания FLOOD_WAIT",
	})
	ExportDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "channel_loader_export_duration_seconds",
		Help:    "Длительность выгрузки канала",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	}, []string{"status"})
	ExportErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_loader_export_errors_total",
		Help: "Ошибки выгрузки по видам",
	}, []string{"kind"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 45, 60, 90, 120, 180, 300, 600},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PostsExported,
		CommentsExported,
		FloodWaits,
		FloodWaitSeconds,
		ExportDuration,
		ExportErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveFloodWait учитывает ожидание, запрошенное сервером.
func ObserveFloodWait(operation string, wait time.Duration) {
	FloodWaits.WithLabelValues(operation).Inc()
	FloodWaitSeconds.Add(wait.Seconds())
}

// ObservePost учитывает выгруженный пост вместе с его комментариями.
func ObservePost(comments int) {
	PostsExported.Inc()
	CommentsExported.Add(float64(comments))
}

// ObserveExport записывает итог выгрузки.
func ObserveExport(status string, duration time.Duration) {
	ExportDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncExportError увеличивает счётчик ошибок указанного вида.
func IncExportError(kind string) {
	ExportErrors.WithLabelValues(kind).Inc()
}
