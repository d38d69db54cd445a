package cache

import (
	"context"
	"slices"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/seoplan/planner/modules/planimport/domain/events"
	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/pkg/eventbus"
	"github.com/seoplan/planner/pkg/logging"
)

type countingLister struct {
	calls   [][]record.TargetID
	records []record.Record
}

func (l *countingLister) ListRecords(_ context.Context, targets []record.TargetID) ([]record.Record, error) {
	l.calls = append(l.calls, targets)
	var out []record.Record
	for _, r := range l.records {
		if len(targets) == 0 || slices.Contains(targets, r.Project) {
			out = append(out, r)
		}
	}
	return out, nil
}

func topic(s string) item.Fields { return item.Fields{Topic: &s} }

func counterValue(t *testing.T, result string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, lookups.WithLabelValues(result).Write(&m))
	return m.GetCounter().GetValue()
}

func TestCachedLister_HitsAndInvalidation(t *testing.T) {
	next := &countingLister{records: []record.Record{
		{ID: 1, Project: 10, Fields: topic("X")},
		{ID: 2, Project: 20, Fields: topic("X")},
		{ID: 3, Project: 30, Fields: topic("Y")},
	}}
	l := NewCachedLister(next, nil)
	ctx := context.Background()
	hits := counterValue(t, "hit")

	got, err := l.ListRecords(ctx, []record.TargetID{20, 10, 20})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, [][]record.TargetID{{10, 20}}, next.calls)

	*got[0].Topic = "mutated"
	again, err := l.ListRecords(ctx, []record.TargetID{10, 20})
	require.NoError(t, err)
	require.Equal(t, "X", *again[0].Topic, "cached values are copies")
	require.Len(t, next.calls, 1)
	require.Equal(t, hits+1, counterValue(t, "hit"))

	_, err = l.ListRecords(ctx, []record.TargetID{30})
	require.NoError(t, err)
	_, err = l.ListRecords(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 3, l.cache.len())

	l.Invalidate(20)
	require.Equal(t, 1, l.cache.len(), "only the target 30 listing survives")

	_, err = l.ListRecords(ctx, []record.TargetID{30})
	require.NoError(t, err)
	require.Len(t, next.calls, 3)
}

func TestCachedLister_InvalidatesOnEvents(t *testing.T) {
	next := &countingLister{records: []record.Record{{ID: 1, Project: 10, Fields: topic("X")}}}
	l := NewCachedLister(next, nil)
	bus := eventbus.NewEventPublisher(logging.Nop())
	unsubscribe := l.Subscribe(bus)
	ctx := context.Background()

	_, err := l.ListRecords(ctx, []record.TargetID{10})
	require.NoError(t, err)
	for _, ev := range []any{
		events.ImportCompleted{Targets: []record.TargetID{10}},
		events.RecordsChanged{Targets: []record.TargetID{10}},
	} {
		before := len(next.calls)
		bus.Publish(ev)
		for range 2 {
			_, err = l.ListRecords(ctx, []record.TargetID{10})
			require.NoError(t, err)
		}
		require.Len(t, next.calls, before+1, "%T must invalidate", ev)
	}

	unsubscribe()
	require.Zero(t, bus.SubscribersCount())
}
