package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics holds the backup counters. A nil registerer leaves them unregistered.
type Metrics struct {
	Exports        *prometheus.CounterVec
	Commits        *prometheus.CounterVec
	Restores       *prometheus.CounterVec
	RestoreRecords *prometheus.CounterVec
	ExportDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Exports: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cobrancas",
				Subsystem: "backup",
				Name:      "exports_total",
				Help:      "Snapshot exports by mode and result",
			},
			[]string{"mode", "result"},
		),
		Commits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cobrancas",
				Subsystem: "backup",
				Name:      "commits_total",
				Help:      "Git commits of snapshot files by result",
			},
			[]string{"result"},
		),
		Restores: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cobrancas",
				Subsystem: "backup",
				Name:      "restores_total",
				Help:      "Restore runs by result",
			},
			[]string{"result"},
		),
		RestoreRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cobrancas",
				Subsystem: "backup",
				Name:      "restore_records_total",
				Help:      "Records processed by restore, by outcome",
			},
			[]string{"outcome"},
		),
		ExportDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cobrancas",
				Subsystem: "backup",
				Name:      "export_duration_seconds",
				Help:      "Duration of snapshot exports in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
	}
}

func resultLabel(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
