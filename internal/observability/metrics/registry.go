package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewRegisterer hands collectors the process default registry, which the
// gorm plugin and the go runtime collectors already write to.
func NewRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}

// NewGatherer is the registry /metrics serves.
func NewGatherer() prometheus.Gatherer {
	return prometheus.DefaultGatherer
}
