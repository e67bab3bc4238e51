package rotate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rotavault_rotations_total",
		Help: "Total number of successful secret rotations, by blob format",
	}, []string{"format"})

	rotationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rotavault_rotation_failures_total",
		Help: "Total number of failed secret rotations, by failing operation",
	}, []string{"op"})
)
