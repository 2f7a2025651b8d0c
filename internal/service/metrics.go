package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokenPairsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_pairs_issued_total",
		Help: "Total number of access/refresh token pairs issued, by operation.",
	}, []string{"operation"})

	refreshRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_rotations_total",
		Help: "Total number of successful refresh token rotations.",
	})

	loginFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_login_failures_total",
		Help: "Total number of rejected login attempts.",
	})

	logouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_logouts_total",
		Help: "Total number of logout requests processed.",
	})
)
