package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Sink backed by client_golang counters/histograms,
// registered against the given registerer (pass prometheus.DefaultRegisterer
// for the global registry, or a fresh prometheus.NewRegistry() in tests).
type Prometheus struct {
	commandsStarted   *prometheus.CounterVec
	commandsSucceeded *prometheus.CounterVec
	commandsFailed    *prometheus.CounterVec
	idempotentOps     *prometheus.CounterVec
	leadershipChanges *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	cycleDuration     *prometheus.HistogramVec
	cycleEvents       *prometheus.HistogramVec
}

// NewPrometheus creates and registers a Prometheus sink. Registering
// twice against the same registerer returns an error from MustRegister,
// which this deliberately lets panic at startup rather than run with a
// half-registered metric set.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		commandsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcbstore", Name: "commands_started_total",
			Help: "Commands handed to the CommandExecutor, by command type.",
		}, []string{"command_type"}),
		commandsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcbstore", Name: "commands_succeeded_total",
			Help: "Commands that produced and appended events, by command type.",
		}, []string{"command_type"}),
		commandsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcbstore", Name: "commands_failed_total",
			Help: "Commands that failed, by command type and failure reason.",
		}, []string{"command_type", "reason"}),
		idempotentOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcbstore", Name: "idempotent_operations_total",
			Help: "AppendIf calls short-circuited by an idempotency match, by command type.",
		}, []string{"command_type"}),
		leadershipChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcbstore", Name: "leadership_changes_total",
			Help: "Leader election transitions, by instance id and new role.",
		}, []string{"instance_id", "role"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dcbstore", Name: "command_duration_seconds",
			Help:    "Time spent executing a successful command.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command_type"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dcbstore", Name: "processing_cycle_duration_seconds",
			Help:    "Time spent in one fetch-project-handle-advance cycle.",
			Buckets: prometheus.DefBuckets,
		}, []string{"processor_id"}),
		cycleEvents: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dcbstore", Name: "processing_cycle_events",
			Help:    "Events handled in one processing cycle.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		}, []string{"processor_id"}),
	}

	reg.MustRegister(
		p.commandsStarted, p.commandsSucceeded, p.commandsFailed,
		p.idempotentOps, p.leadershipChanges, p.commandDuration,
		p.cycleDuration, p.cycleEvents,
	)
	return p
}

func (p *Prometheus) CommandStarted(commandType string) {
	p.commandsStarted.WithLabelValues(commandType).Inc()
}

func (p *Prometheus) CommandSucceeded(commandType string, duration time.Duration) {
	p.commandsSucceeded.WithLabelValues(commandType).Inc()
	p.commandDuration.WithLabelValues(commandType).Observe(duration.Seconds())
}

func (p *Prometheus) CommandFailed(commandType string, reason string) {
	p.commandsFailed.WithLabelValues(commandType, reason).Inc()
}

func (p *Prometheus) IdempotentOperation(commandType string) {
	p.idempotentOps.WithLabelValues(commandType).Inc()
}

func (p *Prometheus) LeadershipChanged(instanceID string, isLeader bool) {
	role := "follower"
	if isLeader {
		role = "leader"
	}
	p.leadershipChanges.WithLabelValues(instanceID, role).Inc()
}

func (p *Prometheus) ProcessingCycle(processorID string, eventsHandled int, duration time.Duration) {
	p.cycleDuration.WithLabelValues(processorID).Observe(duration.Seconds())
	p.cycleEvents.WithLabelValues(processorID).Observe(float64(eventsHandled))
}
