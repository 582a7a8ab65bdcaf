package handlers

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DSTX70/gigster-switchboard/pkg/config"
	"github.com/DSTX70/gigster-switchboard/pkg/logging"
)

var (
	db      *sql.DB
	logger  logging.Logger
	metrics *SwitchboardMetrics
	cfg     Config
	probes  *ProbeCache
)

// Config carries every tunable this package reads. It is materialized once at
// startup so tests can inject fixtures instead of mutating the environment.
type Config struct {
	ICadenceWebhookSecret string
	RFPWebhookSecret      string
	LoyaltyWebhookSecret  string

	ICadenceEnabled bool
	RFPEnabled      bool
	LoyaltyEnabled  bool

	MaxMediaBytes int64
	ProbeTTL      time.Duration
	ProbeTimeout  time.Duration

	ErrorRateAlertPct    float64
	QueueAgeAlertMinutes float64
	SaturationAlertPct   float64
}

// ConfigFromEnv builds the package configuration from the process environment
func ConfigFromEnv() Config {
	return Config{
		ICadenceWebhookSecret: config.GetEnv("ICADENCE_WEBHOOK_SECRET", ""),
		RFPWebhookSecret:      config.GetEnv("RFP_WEBHOOK_SECRET", ""),
		LoyaltyWebhookSecret:  config.GetEnv("LOYALTY_WEBHOOK_SECRET", ""),
		ICadenceEnabled:       config.GetEnvBool("INTEGRATION_ICADENCE_ENABLED", true),
		RFPEnabled:            config.GetEnvBool("INTEGRATION_RFP_ENABLED", true),
		LoyaltyEnabled:        config.GetEnvBool("INTEGRATION_LOYALTY_ENABLED", true),
		MaxMediaBytes:         int64(config.GetEnvInt("SOCIAL_MEDIA_MAX_BYTES", 10*1024*1024)),
		ProbeTTL:              config.GetEnvMillis("MEDIA_HEAD_TTL_MS", 6*60*60*1000),
		ProbeTimeout:          config.GetEnvMillis("MEDIA_HEAD_TIMEOUT_MS", 5000),
		ErrorRateAlertPct:     5,
		QueueAgeAlertMinutes:  30,
		SaturationAlertPct:    90,
	}
}

// SwitchboardMetrics holds all Prometheus metrics for Switchboard
type SwitchboardMetrics struct {
	WebhookEvents   *prometheus.CounterVec
	QueueOperations *prometheus.CounterVec
	MediaProbes     *prometheus.CounterVec
	AlertsFired     *prometheus.CounterVec

	QueueErrorRate      *prometheus.GaugeVec
	QueueMaxAgeMinutes  *prometheus.GaugeVec
	RateLimitSaturation *prometheus.GaugeVec

	DBQueries     *prometheus.CounterVec
	DBDuration    *prometheus.HistogramVec
	DBConnections *prometheus.GaugeVec
}

// Init initializes the handlers with database, logger, metrics and configuration
func Init(database *sql.DB, log logging.Logger, switchboardMetrics *SwitchboardMetrics, c Config) {
	db = database
	logger = log
	metrics = switchboardMetrics
	cfg = c
	probes = NewProbeCache(database, log, c.ProbeTTL, c.ProbeTimeout)
}
