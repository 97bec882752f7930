package transport

import (
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"time"
)

// requestMetrics holds all request metrics of the connections in this process
var requestMetrics = metrics.NewSet()

// RecordRequest updates the request metrics of a protocol after a request completed
func RecordRequest(protocol common.Protocol, start time.Time, err error) {
	p := protocol.String()
	requestMetrics.GetOrCreateCounter(fmt.Sprintf(`dbwire_requests_total{protocol=%q}`, p)).Inc()
	requestMetrics.GetOrCreateHistogram(fmt.Sprintf(`dbwire_request_duration_seconds{protocol=%q}`, p)).UpdateDuration(start)

	if err != nil {
		requestMetrics.GetOrCreateCounter(
			fmt.Sprintf(`dbwire_request_errors_total{protocol=%q,class=%q}`, p, errorClass(err)),
		).Inc()
	}
}

// RequestCount returns the number of requests recorded for a protocol
func RequestCount(protocol common.Protocol) uint64 {
	return requestMetrics.GetOrCreateCounter(fmt.Sprintf(`dbwire_requests_total{protocol=%q}`, protocol.String())).Get()
}

// WriteMetrics writes all request metrics in Prometheus text format to w
func WriteMetrics(w io.Writer) {
	requestMetrics.WritePrometheus(w)
}

// errorClass maps an error to a short label value
func errorClass(err error) string {
	switch {
	case common.IsTimeout(err):
		return "timeout"
	case common.IsAuthentication(err):
		return "auth"
	case common.IsTransport(err):
		return "transport"
	default:
		if _, ok := common.AsDomainError(err); ok {
			return "domain"
		}
		return "other"
	}
}
