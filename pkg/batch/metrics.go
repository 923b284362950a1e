package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchUsersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osm_batch_users_total",
		Help: "Total users processed by batch aggregations",
	})

	batchUserErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osm_batch_user_errors_total",
		Help: "Total users without a result by reason",
	}, []string{"reason"})
)
