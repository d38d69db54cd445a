// Package cache keeps GET /records listings until an import or bulk operation touches one
// of the listed targets.
package cache

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/seoplan/planner/modules/planimport/domain/events"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/modules/planimport/services"
	"github.com/seoplan/planner/pkg/eventbus"
	"github.com/seoplan/planner/pkg/logging"
)

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "planner",
	Subsystem: "listing_cache",
	Name:      "lookups_total",
	Help:      "Listing cache lookups broken down by hit or miss.",
}, []string{"result"})

// allTargets is the key of an unfiltered listing. It is dropped on every invalidation.
const allTargets = "*"

type listingCache struct {
	mu          sync.RWMutex
	entries     map[string][]record.Record
	targetIndex map[record.TargetID]map[string]struct{}
}

func newListingCache() *listingCache {
	return &listingCache{
		entries:     make(map[string][]record.Record),
		targetIndex: make(map[record.TargetID]map[string]struct{}),
	}
}

func (c *listingCache) get(key string) ([]record.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *listingCache) set(targets []record.TargetID, key string, value []record.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	for _, t := range targets {
		if _, ok := c.targetIndex[t]; !ok {
			c.targetIndex[t] = make(map[string]struct{})
		}
		c.targetIndex[t][key] = struct{}{}
	}
}

func (c *listingCache) invalidateTarget(target record.TargetID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.targetIndex[target] {
		delete(c.entries, key)
	}
	delete(c.targetIndex, target)
	delete(c.entries, allTargets)
}

func (c *listingCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func keyOf(targets []record.TargetID) (string, []record.TargetID) {
	if len(targets) == 0 {
		return allTargets, nil
	}
	sorted := slices.Clone(targets)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	parts := make([]string, len(sorted))
	for i, t := range sorted {
		parts[i] = strconv.FormatInt(int64(t), 10)
	}
	return strings.Join(parts, ","), sorted
}

// CachedLister serves repeated listings from memory. Each returned slice is a fresh copy.
type CachedLister struct {
	next  services.RecordLister
	cache *listingCache
	log   *logrus.Entry
}

var _ services.RecordLister = (*CachedLister)(nil)

func NewCachedLister(next services.RecordLister, log *logrus.Entry) *CachedLister {
	if log == nil {
		log = logging.Nop()
	}
	return &CachedLister{next: next, cache: newListingCache(), log: log}
}

func (l *CachedLister) ListRecords(ctx context.Context, targets []record.TargetID) ([]record.Record, error) {
	key, sorted := keyOf(targets)
	if v, ok := l.cache.get(key); ok {
		lookups.WithLabelValues("hit").Inc()
		return cloneRecords(v), nil
	}
	lookups.WithLabelValues("miss").Inc()
	out, err := l.next.ListRecords(ctx, sorted)
	if err != nil {
		return nil, err
	}
	l.cache.set(sorted, key, cloneRecords(out))
	return out, nil
}

// Invalidate drops every cached listing that covers one of targets.
func (l *CachedLister) Invalidate(targets ...record.TargetID) {
	for _, t := range targets {
		l.cache.invalidateTarget(t)
	}
	l.log.WithField("targets", targets).Debug("listing cache invalidated")
}

// Subscribe hooks invalidation to completion events on bus. The returned func unsubscribes.
func (l *CachedLister) Subscribe(bus eventbus.EventBus) func() {
	unsubImport := bus.Subscribe(func(e events.ImportCompleted) { l.Invalidate(e.Targets...) })
	unsubChanged := bus.Subscribe(func(e events.RecordsChanged) { l.Invalidate(e.Targets...) })
	return func() {
		unsubImport()
		unsubChanged()
	}
}

func cloneRecords(in []record.Record) []record.Record {
	if in == nil {
		return nil
	}
	out := make([]record.Record, len(in))
	for i, r := range in {
		out[i] = record.Record{ID: r.ID, Project: r.Project, Fields: r.Fields.Clone()}
	}
	return out
}
