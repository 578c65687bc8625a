package mainboilerplate

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"go.streambridge.dev/core/metrics"
)

// LogConfig configures handling of application log events.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// InitLog configures the logger.
func InitLog(cfg LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else if cfg.Format == "text" {
		log.SetFormatter(&log.TextFormatter{})
	} else if cfg.Format == "color" {
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	}

	if lvl, err := log.ParseLevel(cfg.Level); err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
	} else {
		log.SetLevel(lvl)
	}
}

// MetricsConfig configures pull-based application metrics.
type MetricsConfig struct {
	Port string `long:"port" env:"PORT" description:"Port for serving Prometheus metrics. Disabled if not set"`
}

// InitMetrics registers the streambridge collectors and, if a port is
// configured, serves them at /metrics.
func InitMetrics(cfg MetricsConfig) {
	prometheus.MustRegister(metrics.Collectors()...)

	if cfg.Port == "" {
		return
	}
	var mux = http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		Must(http.ListenAndServe(":"+cfg.Port, mux), "failed to serve metrics", "port", cfg.Port)
	}()
}
