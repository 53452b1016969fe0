package coordinator

import "expvar"

var (
	metricRacesCreated   = expvar.NewInt("race_created_total")
	metricRacesFinalized = expvar.NewInt("race_finalized_total")
	metricRacesAborted   = expvar.NewInt("race_aborted_total")
	metricRacesLive      = expvar.NewInt("race_live")
	metricTaps           = expvar.NewInt("race_tap_total")
	metricDNF            = expvar.NewInt("race_dnf_total")

	metricPersistFailures = expvar.NewInt("race_persist_failures_total")
	metricPersistParked   = expvar.NewInt("race_persist_parked")
)
