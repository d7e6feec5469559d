package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics (C12, SPEC_FULL.md §4.11): additive instrumentation over the
// chain engine and API, registered against the default registerer and
// served at GET /metrics alongside the /v1/* routes. None of this affects
// admission semantics.
var (
	metricBlocksAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solenode_blocks_added_total",
		Help: "Total blocks accepted by the chain engine.",
	})
	metricTxAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solenode_transactions_admitted_total",
		Help: "Total unconfirmed transactions admitted.",
	})
	metricTxRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solenode_transactions_rejected_total",
		Help: "Total block/transaction admissions rejected, by error kind.",
	}, []string{"reason"})
	metricMiningAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solenode_mining_attempts_total",
		Help: "Total mining rounds started by the mining loop.",
	})
	metricChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solenode_chain_height",
		Help: "Height of the last accepted block.",
	})
	metricAPIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solenode_api_requests_total",
		Help: "Total API requests, by route and status.",
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(
		metricBlocksAdded,
		metricTxAdmitted,
		metricTxRejected,
		metricMiningAttempts,
		metricChainHeight,
		metricAPIRequests,
	)
}
