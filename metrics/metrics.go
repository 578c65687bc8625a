// Package metrics defines prometheus collectors for streambridge clients.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors for streaming.Broadcaster metrics, labeled by stream name.
var (
	StreamStartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streambridge_stream_starts_total",
		Help: "Cumulative number of stream connection attempts.",
	}, []string{"stream"})
	StreamItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streambridge_stream_items_total",
		Help: "Cumulative number of items forwarded to the broadcast channel.",
	}, []string{"stream"})
	StreamRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streambridge_stream_retries_total",
		Help: "Cumulative number of scheduled stream retries.",
	}, []string{"stream"})
	StreamGiveUpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streambridge_stream_give_ups_total",
		Help: "Cumulative number of streams closed due to an exhausted retry budget.",
	}, []string{"stream"})
)

// Collectors returns all collectors of the package, for registration with a
// prometheus.Registerer.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		StreamStartsTotal,
		StreamItemsTotal,
		StreamRetriesTotal,
		StreamGiveUpsTotal,
	}
}
