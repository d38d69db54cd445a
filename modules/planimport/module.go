// Package planimport wires the import pipeline: backend client, listing cache, event bus,
// executor, per-item submitter and bulk service.
package planimport

import (
	"context"
	"net/http"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/seoplan/planner/modules/planimport/domain/field"
	"github.com/seoplan/planner/modules/planimport/infrastructure/backend"
	"github.com/seoplan/planner/modules/planimport/infrastructure/cache"
	"github.com/seoplan/planner/modules/planimport/services"
	"github.com/seoplan/planner/pkg/configuration"
	"github.com/seoplan/planner/pkg/eventbus"
	"github.com/seoplan/planner/pkg/logging"
	"github.com/seoplan/planner/pkg/retry"
	"github.com/seoplan/planner/pkg/tabular"
)

type ModuleOptions struct {
	Backend configuration.BackendOptions
	Import  configuration.ImportOptions
	Logger  *logrus.Entry
	// HTTPClient replaces the default client built from Backend.Timeout.
	HTTPClient *http.Client
	// Clock drives retry waits and request pacing.
	Clock clockwork.Clock
}

func (o *ModuleOptions) setDefaults() {
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

// OptionsFromConfiguration takes backend and import settings from conf.
func OptionsFromConfiguration(conf *configuration.Configuration) ModuleOptions {
	return ModuleOptions{
		Backend: conf.Backend,
		Import:  conf.Import,
		Logger:  logrus.NewEntry(conf.Logger()),
	}
}

type Module struct {
	Client    *backend.Client
	Records   *cache.CachedLister
	Bus       eventbus.EventBus
	Executor  *services.Executor
	Submitter *services.Submitter
	Bulk      *services.BulkService

	log         *logrus.Entry
	unsubscribe func()
}

func NewModule(opts ModuleOptions) (*Module, error) {
	opts.setDefaults()
	log := opts.Logger.WithField("module", "planimport")

	client, err := backend.NewClient(backend.Options{
		BaseURL:         opts.Backend.URL,
		Token:           opts.Backend.Token,
		Timeout:         opts.Backend.Timeout,
		RequestIDHeader: opts.Backend.RequestIDHeader,
		HTTPClient:      opts.HTTPClient,
		Logger:          log.WithField("component", "backend"),
	})
	if err != nil {
		return nil, err
	}

	bus := eventbus.NewEventPublisher(log.WithField("component", "eventbus"))
	records := cache.NewCachedLister(client, log.WithField("component", "cache"))
	submitter := services.NewSubmitter(services.SubmitterOptions{
		Policy: retry.Policy{
			MaxAttempts: opts.Import.MaxAttempts,
			Delay:       opts.Import.RequestDelay,
			Backoff:     opts.Import.RetryBackoff,
			Clock:       opts.Clock,
		},
		MaxErrors: opts.Import.MaxErrors,
		Logger:    log.WithField("component", "submitter"),
	})

	m := &Module{
		Client:    client,
		Records:   records,
		Bus:       bus,
		Submitter: submitter,
		Executor:  services.NewExecutor(client, services.ExecutorOptions{Logger: log, Bus: bus}),
		Bulk: services.NewBulkService(client, records, services.BulkOptions{
			Logger:    log,
			Bus:       bus,
			Submitter: submitter,
		}),
		log: log,
	}
	m.unsubscribe = records.Subscribe(bus)
	return m, nil
}

func (m *Module) Name() string {
	return "planimport"
}

// Close detaches the cache from the bus.
func (m *Module) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Prepare runs the parse-side pipeline over table. When the schema has person fields and
// no resolver was given, the user directory is fetched; a failed fetch leaves authors
// unresolved instead of failing the import.
func (m *Module) Prepare(ctx context.Context, table *tabular.Table, kind field.ImportKind, opts services.PipelineOptions) (*services.Prepared, error) {
	if opts.Logger == nil {
		opts.Logger = m.log
	}
	if opts.Resolver == nil && needsResolver(kind) {
		resolver, err := services.LoadEntityResolver(ctx, m.Client)
		if err != nil {
			m.log.WithError(err).Warn("user directory unavailable, authors stay unresolved")
		} else {
			opts.Resolver = resolver
		}
	}
	return services.Prepare(table, kind, opts)
}

func needsResolver(kind field.ImportKind) bool {
	schema, err := field.SchemaFor(kind)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(schema.Fields, func(s field.Spec) bool { return s.Kind == field.KindPerson })
}
