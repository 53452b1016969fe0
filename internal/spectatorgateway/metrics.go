package spectatorgateway

import "expvar"

var (
	metricSpectatorSSEConnectionsTotal  = expvar.NewInt("race_spectator_streams_total")
	metricSpectatorSSEConnectionsActive = expvar.NewInt("race_spectator_streams_active")
)
