package metrics

import "github.com/prometheus/client_golang/prometheus"

// ServerMetrics holds the arbiter server's counters and gauges,
// adapted from the teacher's Metrics/Averager pattern in metric.go.
// Only SendQueueDepth is registered with Prometheus.
type ServerMetrics struct {
	Sessions        Gauge
	VotesCast       Counter
	Decisions       Counter
	SendQueueDepth  Averager
	TLSHandshakeOK  Counter
	TLSHandshakeErr Counter
}

// NewServerMetrics builds the qnetd metric set, registering the
// SendQueueDepth averager against reg; the counters and the gauge are
// in-process only and are not registered.
func NewServerMetrics(reg prometheus.Registerer) (*ServerMetrics, error) {
	m := &ServerMetrics{
		Sessions: NewGauge(),
	}
	var err error
	m.SendQueueDepth, err = NewAverager("qnetd_send_queue_depth", "bytes queued per session send-buffer", reg)
	if err != nil {
		return nil, err
	}
	m.VotesCast = NewCounter()
	m.Decisions = NewCounter()
	m.TLSHandshakeOK = NewCounter()
	m.TLSHandshakeErr = NewCounter()
	return m, nil
}

// ClientMetrics holds the arbiter client's in-process counters.
type ClientMetrics struct {
	HeartbeatsSent    Counter
	HeartbeatsMissed  Counter
	Reconnects        Counter
	CastVoteRetries   Counter
	ReloadsCoalesced  Counter
}

// NewClientMetrics builds the qdevice counter set. reg is not used:
// none of the counters is registered with Prometheus.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	return &ClientMetrics{
		HeartbeatsSent:   NewCounter(),
		HeartbeatsMissed: NewCounter(),
		Reconnects:       NewCounter(),
		CastVoteRetries:  NewCounter(),
		ReloadsCoalesced: NewCounter(),
	}
}
