package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "resock"

// Collector records the lifecycle of one reconnecting socket client.
// A nil *Collector is valid and records nothing.
type Collector struct {
	State             prometheus.Gauge
	OpensTotal        prometheus.Counter
	ClosesTotal       prometheus.Counter
	ErrorsTotal       prometheus.Counter
	ReconnectsTotal   prometheus.Counter
	ExhaustedTotal    prometheus.Counter
	MessagesReceived  prometheus.Counter
	MessagesSent      prometheus.Counter
	MessagesDropped   *prometheus.CounterVec
	ReconnectAttempts prometheus.Gauge
}

// NewCollector creates a Collector labelled with the endpoint and registers it on reg.
func NewCollector(reg prometheus.Registerer, endpoint string) (*Collector, error) {
	labels := prometheus.Labels{"endpoint": endpoint}

	c := &Collector{
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "connection_state",
			Help:        "Current connection state (0 idle, 1 connecting, 2 open, 3 waiting, 4 exhausted, 5 closed)",
			ConstLabels: labels,
		}),
		OpensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "opens_total",
			Help:        "Total number of successfully opened sockets",
			ConstLabels: labels,
		}),
		ClosesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "closes_total",
			Help:        "Total number of socket closes, including failed dials",
			ConstLabels: labels,
		}),
		ErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "transport_errors_total",
			Help:        "Total number of transport errors",
			ConstLabels: labels,
		}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "reconnects_scheduled_total",
			Help:        "Total number of scheduled reconnect attempts",
			ConstLabels: labels,
		}),
		ExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "reconnect_budget_exhausted_total",
			Help:        "Total number of times the reconnect budget ran out",
			ConstLabels: labels,
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "messages_received_total",
			Help:        "Total number of inbound messages",
			ConstLabels: labels,
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "messages_sent_total",
			Help:        "Total number of outbound messages written",
			ConstLabels: labels,
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "messages_dropped_total",
			Help:        "Total number of outbound messages dropped",
			ConstLabels: labels,
		}, []string{"reason"}),
		ReconnectAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "reconnect_attempts",
			Help:        "Reconnect attempts spent since the last successful open",
			ConstLabels: labels,
		}),
	}

	if reg == nil {
		return c, nil
	}
	for _, col := range []prometheus.Collector{
		c.State, c.OpensTotal, c.ClosesTotal, c.ErrorsTotal, c.ReconnectsTotal,
		c.ExhaustedTotal, c.MessagesReceived, c.MessagesSent, c.MessagesDropped,
		c.ReconnectAttempts,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) SetState(state int) {
	if c == nil {
		return
	}
	c.State.Set(float64(state))
}

func (c *Collector) Opened() {
	if c == nil {
		return
	}
	c.OpensTotal.Inc()
	c.ReconnectAttempts.Set(0)
}

func (c *Collector) Closed() {
	if c == nil {
		return
	}
	c.ClosesTotal.Inc()
}

func (c *Collector) Errored() {
	if c == nil {
		return
	}
	c.ErrorsTotal.Inc()
}

// ReconnectScheduled records a scheduled attempt and the attempt number it spends.
func (c *Collector) ReconnectScheduled(attempt int) {
	if c == nil {
		return
	}
	c.ReconnectsTotal.Inc()
	c.ReconnectAttempts.Set(float64(attempt))
}

func (c *Collector) Exhausted() {
	if c == nil {
		return
	}
	c.ExhaustedTotal.Inc()
}

func (c *Collector) Received() {
	if c == nil {
		return
	}
	c.MessagesReceived.Inc()
}

func (c *Collector) Sent() {
	if c == nil {
		return
	}
	c.MessagesSent.Inc()
}

// Dropped records an outbound message that was not written, by reason.
func (c *Collector) Dropped(reason string) {
	if c == nil {
		return
	}
	c.MessagesDropped.WithLabelValues(reason).Inc()
}
