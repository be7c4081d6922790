// File: server/stats.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/control"
)

// Counter names in the metrics registry.
const (
	MetricAccepted     = "conn.accepted"
	MetricActive       = "conn.active"
	MetricClosed       = "conn.closed"
	MetricAcceptErrors = "conn.accept_errors"
	MetricReadResets   = "conn.read_resets"
	metricResponses    = "responses."
)

// ResponsesMetric returns the counter name for responses produced by kind.
func ResponsesMetric(kind api.HandlerKind) string {
	return metricResponses + kind.String()
}

// Stats is a point-in-time view of the server counters.
type Stats struct {
	Accepted     int64
	Active       int64
	Closed       int64
	AcceptErrors int64
	ReadResets   int64
	Responses    map[api.HandlerKind]int64
}

func statsFrom(mr *control.MetricsRegistry) Stats {
	st := Stats{
		Accepted:     mr.Counter(MetricAccepted),
		Active:       mr.Counter(MetricActive),
		Closed:       mr.Counter(MetricClosed),
		AcceptErrors: mr.Counter(MetricAcceptErrors),
		ReadResets:   mr.Counter(MetricReadResets),
		Responses:    make(map[api.HandlerKind]int64, 3),
	}
	for _, k := range []api.HandlerKind{api.KindRaw, api.KindApplication, api.KindCache} {
		if n := mr.Counter(ResponsesMetric(k)); n > 0 {
			st.Responses[k] = n
		}
	}
	return st
}
