package ws

import "expvar"

var (
	metricSessionsActive = expvar.NewInt("ws_sessions_active")
	metricAuthFailures   = expvar.NewInt("ws_auth_failures_total")
	metricMessagesIn     = expvar.NewInt("ws_messages_in_total")
	metricMessageErrors  = expvar.NewInt("ws_message_errors_total")
)
