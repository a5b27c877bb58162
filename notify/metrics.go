package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	liveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupbuy_ws_connections",
		Help: "Live notification connections.",
	})
	notificationsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupbuy_notifications_persisted_total",
		Help: "Notifications committed to the record store, by type.",
	}, []string{"type"})
	notificationsPushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupbuy_notifications_pushed_total",
		Help: "Notification frames handed to a live connection.",
	})
	pushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupbuy_notification_push_failures_total",
		Help: "Pushes that failed and caused the connection to be dropped.",
	})
)
