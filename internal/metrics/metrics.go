package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the expense review pipeline.
type Metrics struct {
	SubmissionsIngested  *prometheus.CounterVec
	SchemaRejections     prometheus.Counter
	SecurityThreats      prometheus.Counter
	Decisions            *prometheus.CounterVec
	HITLResolutions      *prometheus.CounterVec
	NotificationSends    prometheus.Counter
	NotificationFailures prometheus.Counter
}

// New creates pipeline metrics registered against the given registerer.
// Tests pass a fresh registry; main passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expense_gate_submissions_ingested_total",
			Help: "Submissions accepted for processing, by source",
		}, []string{"source"}),
		SchemaRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "expense_gate_schema_rejections_total",
			Help: "Submissions rejected by the row normalizer",
		}),
		SecurityThreats: factory.NewCounter(prometheus.CounterOpts{
			Name: "expense_gate_security_threats_total",
			Help: "Submissions denied by the security filter",
		}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expense_gate_decisions_total",
			Help: "Pipeline decisions, by resulting status",
		}, []string{"status"}),
		HITLResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expense_gate_hitl_resolutions_total",
			Help: "Flagged submissions resolved by an administrator, by outcome",
		}, []string{"outcome"}),
		NotificationSends: factory.NewCounter(prometheus.CounterOpts{
			Name: "expense_gate_notifications_sent_total",
			Help: "Notification deliveries that succeeded",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "expense_gate_notification_failures_total",
			Help: "Notification deliveries that exhausted their retry budget",
		}),
	}
}
