// Package telemetry records engine counters through OpenTelemetry.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package telemetry

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const meterName = "github.com/ppiankov/verdict"

// Metrics holds the engine instruments
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	evidenceScored metric.Int64Counter
	claimsCreated  metric.Int64Counter
	claimsResolved metric.Int64Counter
	votesCast      metric.Int64Counter
	votesRejected  metric.Int64Counter
	finalizations  metric.Int64Counter
	penalties      metric.Int64Counter
	pointsAwarded  metric.Int64UpDownCounter
}

// New creates instruments on a private meter provider read on demand by Snapshot
func New() (*Metrics, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewWithMeter(provider.Meter(meterName))
	if err != nil {
		return nil, err
	}
	m.provider = provider
	m.reader = reader
	return m, nil
}

// NewGlobal creates instruments on the process-wide meter provider installed by the host.
// Snapshot returns nothing for these metrics; the host's exporter reads them.
func NewGlobal() (*Metrics, error) {
	return NewWithMeter(otel.Meter(meterName))
}

// NewWithMeter creates instruments on an existing meter
func NewWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.evidenceScored, "verdict.evidence.scored", "Evidence bundles scored", "{bundle}"},
		{&m.claimsCreated, "verdict.claims.created", "Claims created", "{claim}"},
		{&m.claimsResolved, "verdict.claims.resolved", "Claims resolved by their author", "{claim}"},
		{&m.votesCast, "verdict.votes.cast", "Contest votes accepted", "{vote}"},
		{&m.votesRejected, "verdict.votes.rejected", "Contest votes rejected", "{vote}"},
		{&m.finalizations, "verdict.claims.finalized", "Claims finalized", "{claim}"},
		{&m.penalties, "verdict.penalties", "Overrule penalty attempts", "{penalty}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.pointsAwarded, err = meter.Int64UpDownCounter("verdict.reputation.points",
		metric.WithDescription("Net reputation points applied"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create points counter: %w", err)
	}
	return m, nil
}

func (m *Metrics) EvidenceScored(ctx context.Context, grade string) {
	if m == nil {
		return
	}
	m.evidenceScored.Add(ctx, 1, metric.WithAttributes(attribute.String("grade", grade)))
}

func (m *Metrics) ClaimCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.claimsCreated.Add(ctx, 1)
}

func (m *Metrics) ClaimResolved(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.claimsResolved.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) VoteCast(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.votesCast.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (m *Metrics) VoteRejected(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.votesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

func (m *Metrics) ClaimFinalized(ctx context.Context, overruled bool) {
	if m == nil {
		return
	}
	m.finalizations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("overruled", overruled)))
}

// Penalty records a penalty attempt; result is applied, duplicate or failed
func (m *Metrics) Penalty(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.penalties.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) PointsApplied(ctx context.Context, kind string, points int) {
	if m == nil {
		return
	}
	m.pointsAwarded.Add(ctx, int64(points), metric.WithAttributes(attribute.String("kind", kind)))
}

// Point is one collected counter value
type Point struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      int64             `json:"value"`
}

// Snapshot collects the current counter values. Only metrics created by New can be collected.
func (m *Metrics) Snapshot(ctx context.Context) ([]Point, error) {
	if m == nil || m.reader == nil {
		return nil, nil
	}
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}

	var out []Point
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				p := Point{Name: md.Name, Value: dp.Value}
				if dp.Attributes.Len() > 0 {
					p.Attributes = make(map[string]string, dp.Attributes.Len())
					for _, kv := range dp.Attributes.ToSlice() {
						p.Attributes[string(kv.Key)] = kv.Value.Emit()
					}
				}
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return fmt.Sprint(out[i].Attributes) < fmt.Sprint(out[j].Attributes)
	})
	return out, nil
}

// Shutdown releases the private meter provider
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
