// Package workunit implements the span-scoped telemetry wrapped around
// each node's execution (spec §4.I): span id allocation with parent/child
// linkage, exactly-once start/complete, prometheus counters/histograms, and
// an optional fan-out of completed spans to an external collector.
package workunit

import (
	"context"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dagrule",
			Subsystem: "engine",
			Name:      "node_runs_total",
			Help:      "Total node evaluations, labeled by node kind and result.",
		},
		[]string{"kind", "result"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dagrule",
			Subsystem: "engine",
			Name:      "node_run_duration_seconds",
			Help:      "Node evaluation latency, labeled by node kind.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration)
}

// SpanID is a span's unique identifier.
type SpanID string

// Metadata is the fixed shape of a workunit's descriptive payload.
type Metadata struct {
	Desc    string
	Display bool
	Blocked bool
}

// Workunit is one named, span-scoped unit of engine work.
type Workunit struct {
	Name     string
	SpanID   SpanID
	ParentID SpanID
	Metadata Metadata
	Start    time.Time
	End      time.Time
	Err      error

	completed bool
}

// Store tracks in-flight and completed workunits for one session, and
// optionally fans completed spans out to an MQTT collector — the
// rule-chain engine's messaging transport repurposed here as a telemetry
// sink, since the original rule-chain messaging use case is dropped.
type Store struct {
	mu      sync.Mutex
	parent  SpanID
	pending map[SpanID]*Workunit

	publisher mqtt.Client
	topic     string
}

// New constructs an empty Store. publisher may be nil to disable MQTT
// fan-out.
func New(publisher mqtt.Client, topic string) *Store {
	return &Store{pending: make(map[SpanID]*Workunit), publisher: publisher, topic: topic}
}

func newSpanID() SpanID {
	id, _ := uuid.NewV4()
	return SpanID(id.String())
}

// ctxParentKey holds the context-scoped "current parent span" so nested node
// evaluations inherit it, per §4.I ("set self as the new parent for the
// duration").
type ctxParentKey struct{}

// ParentFrom returns the parent span id carried on ctx, or "" if none.
func ParentFrom(ctx context.Context) SpanID {
	p, _ := ctx.Value(ctxParentKey{}).(SpanID)
	return p
}

// WithParent returns a context carrying id as the current parent span.
func WithParent(ctx context.Context, id SpanID) context.Context {
	return context.WithValue(ctx, ctxParentKey{}, id)
}

// Start allocates a fresh span, inheriting ctx's current parent id, and
// begins tracking it. displayEligible is true only when the session elects
// to handle workunits and the node reports a non-empty user-facing name.
func (s *Store) Start(ctx context.Context, name string, desc string, displayEligible bool) (*Workunit, context.Context) {
	wu := &Workunit{
		Name:     name,
		SpanID:   newSpanID(),
		ParentID: ParentFrom(ctx),
		Metadata: Metadata{Desc: desc, Display: displayEligible},
		Start:    time.Now(),
	}
	s.mu.Lock()
	s.pending[wu.SpanID] = wu
	s.mu.Unlock()
	return wu, WithParent(ctx, wu.SpanID)
}

// Complete finalizes wu exactly once, recording metrics and (if configured)
// publishing the completed span.
func (s *Store) Complete(wu *Workunit, err error) {
	s.mu.Lock()
	if wu.completed {
		s.mu.Unlock()
		return
	}
	wu.completed = true
	wu.End = time.Now()
	wu.Err = err
	delete(s.pending, wu.SpanID)
	s.mu.Unlock()

	status := "ok"
	if err != nil {
		status = "throw"
	}
	runsTotal.WithLabelValues(wu.Name, status).Inc()
	runDuration.WithLabelValues(wu.Name).Observe(wu.End.Sub(wu.Start).Seconds())

	s.publish(wu)
}

func (s *Store) publish(wu *Workunit) {
	if s.publisher == nil || !s.publisher.IsConnected() {
		return
	}
	payload := wu.Name + "|" + string(wu.SpanID) + "|" + wu.Metadata.Desc
	s.publisher.Publish(s.topic, 0, false, payload)
}

// NamedNode is the narrow structural contract workunit instrumentation
// needs from a node to compute its user-facing name — engine.NodeKey
// satisfies this without workunit importing internal/engine.
type NamedNode interface {
	UserFacingName() string
}

// UserFacingName returns n's display name per §4.I's rule set: empty
// unless the node opts in (Task display name, Snapshot debug form,
// MultiPlatformExecuteProcess's inner process name).
func UserFacingName(n NamedNode) string {
	return n.UserFacingName()
}
