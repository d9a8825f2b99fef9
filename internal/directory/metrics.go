package directory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var onlineDrivers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "dispatch_drivers_online",
	Help: "Number of drivers currently reported online by the directory.",
})
