package resultpush

import "expvar"

var (
	metricPushQueued       = expvar.NewInt("race_push_queued_total")
	metricPushDropped      = expvar.NewInt("race_push_dropped_total")
	metricPushRetry        = expvar.NewInt("race_push_retry_total")
	metricPushRetryDropped = expvar.NewInt("race_push_retry_dropped_total")
	metricPushSent         = expvar.NewInt("race_push_sent_total")
	metricPushFailed       = expvar.NewInt("race_push_failed_total")
	metricPushCircuitOpen  = expvar.NewInt("race_push_circuit_open_total")
	metricPushQueueLen     = expvar.NewInt("race_push_queue_len")
	metricPushReload       = expvar.NewInt("race_push_config_reload_total")
	metricPushReloadErrors = expvar.NewInt("race_push_config_reload_errors_total")
)
