package httptransport

import "expvar"

var (
	metricPublicQueryTotal  = expvar.NewInt("http_public_query_total")
	metricPublicQueryErrors = expvar.NewInt("http_public_query_errors_total")
	metricTokensIssued      = expvar.NewInt("http_tokens_issued_total")
)
