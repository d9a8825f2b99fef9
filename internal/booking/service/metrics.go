package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	offersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offers_total",
		Help: "Total driver offers sent out.",
	})

	assignmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_assignments_total",
		Help: "Total bookings assigned to a driver.",
	})

	rejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_rejections_total",
		Help: "Total recorded offer rejections, including watchdog timeouts.",
	})

	acceptConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_accept_conflicts_total",
		Help: "Accept attempts that lost the race for a searching booking.",
	})

	cancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_cancellations_total",
		Help: "Cancelled bookings grouped by cause.",
	}, []string{"cause"})
)
