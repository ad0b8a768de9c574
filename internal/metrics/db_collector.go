// AngelaMos | 2026
// db_collector.go

package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// DBPoolStatFunc matches (*core.Database).Stats.
type DBPoolStatFunc func() sql.DBStats

type dbPoolCollector struct {
	statFunc DBPoolStatFunc

	openDesc     *prometheus.Desc
	inUseDesc    *prometheus.Desc
	idleDesc     *prometheus.Desc
	waitDesc     *prometheus.Desc
	waitSecsDesc *prometheus.Desc
}

func NewDBPoolCollector(statFunc DBPoolStatFunc) prometheus.Collector {
	return &dbPoolCollector{
		statFunc: statFunc,
		openDesc: prometheus.NewDesc(
			namespace+"_db_pool_open_conns",
			"Open connections in the database pool.",
			nil, nil,
		),
		inUseDesc: prometheus.NewDesc(
			namespace+"_db_pool_in_use_conns",
			"Connections currently in use.",
			nil, nil,
		),
		idleDesc: prometheus.NewDesc(
			namespace+"_db_pool_idle_conns",
			"Idle connections in the database pool.",
			nil, nil,
		),
		waitDesc: prometheus.NewDesc(
			namespace+"_db_pool_wait_count_total",
			"Connections waited for.",
			nil, nil,
		),
		waitSecsDesc: prometheus.NewDesc(
			namespace+"_db_pool_wait_seconds_total",
			"Time spent waiting for a connection.",
			nil, nil,
		),
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.openDesc
	ch <- c.inUseDesc
	ch <- c.idleDesc
	ch <- c.waitDesc
	ch <- c.waitSecsDesc
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.statFunc()
	ch <- prometheus.MustNewConstMetric(c.openDesc, prometheus.GaugeValue, float64(s.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.inUseDesc, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.waitDesc, prometheus.CounterValue, float64(s.WaitCount))
	ch <- prometheus.MustNewConstMetric(c.waitSecsDesc, prometheus.CounterValue, s.WaitDuration.Seconds())
}
