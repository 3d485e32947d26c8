package org

import (
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Dr1DeX/orgtree/modules/org/domain/events"
	"github.com/Dr1DeX/orgtree/modules/org/handlers"
	"github.com/Dr1DeX/orgtree/modules/org/infrastructure/cache"
	"github.com/Dr1DeX/orgtree/modules/org/infrastructure/outbox"
	"github.com/Dr1DeX/orgtree/modules/org/infrastructure/persistence"
	"github.com/Dr1DeX/orgtree/modules/org/presentation/controllers"
	"github.com/Dr1DeX/orgtree/modules/org/services"
	"github.com/Dr1DeX/orgtree/pkg/application"
	"github.com/Dr1DeX/orgtree/pkg/configuration"
	"github.com/Dr1DeX/orgtree/pkg/eventbus"
)

type ModuleOptions struct {
	Config *configuration.Configuration
	Logger *logrus.Logger
	// Redis is required when the snapshot cache or the event stream uses it.
	Redis redis.Cmdable
}

// Services is the wired org service graph, shared by the HTTP module and orgctl.
type Services struct {
	Cache       services.SnapshotCache
	Bus         *eventbus.Bus[events.OrgEventV1]
	Stream      *outbox.StreamPublisher
	Propagator  *services.Propagator
	Hierarchy   *services.HierarchyService
	Employees   *services.EmployeeService
	Queries     *services.SubtreeQueryService
	Consistency *services.ConsistencyService
}

func NewSnapshotCache(conf *configuration.Configuration, rdb redis.Cmdable) services.SnapshotCache {
	switch conf.Org.SnapshotCache {
	case "redis":
		if rdb != nil {
			return cache.NewRedisSnapshotCache(rdb, conf.Org.SnapshotCacheKey)
		}
		return services.NewMemorySnapshotCache()
	case "none":
		return services.NoopSnapshotCache{}
	default:
		return services.NewMemorySnapshotCache()
	}
}

// BuildServices wires the Postgres repositories, the snapshot cache and the
// event bus into the org services.
func BuildServices(opts *ModuleOptions) *Services {
	conf := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = conf.Logger()
	}

	stores := services.Stores{
		Departments: persistence.NewDepartmentRepository(),
		Employees:   persistence.NewEmployeeRepository(),
	}
	snapshotCache := NewSnapshotCache(conf, opts.Redis)

	bus := eventbus.New[events.OrgEventV1](logger)
	var stream *outbox.StreamPublisher
	if conf.Org.EventsStream && opts.Redis != nil {
		stream = outbox.NewStreamPublisher(opts.Redis, conf.Org.EventsStreamName, conf.Org.EventsStreamMaxLen)
	}
	handlers.RegisterOrgEventHandlers(bus, logger, stream)

	prop := services.NewPropagator(stores, conf.Org.PropagationBatchSize)
	return &Services{
		Cache:      snapshotCache,
		Bus:        bus,
		Stream:     stream,
		Propagator: prop,
		Hierarchy:  services.NewHierarchyService(stores, prop, snapshotCache, bus),
		Employees:  services.NewEmployeeService(stores, snapshotCache, bus),
		Queries: services.NewSubtreeQueryService(stores, snapshotCache, services.QueryOptions{
			PageSize:    conf.PageSize,
			MaxPageSize: conf.MaxPageSize,
			SnapshotTTL: conf.Org.SnapshotTTL,
		}),
		Consistency: services.NewConsistencyService(stores, prop, snapshotCache),
	}
}

func NewModule(opts *ModuleOptions) application.Module {
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	opts := *m.options
	if opts.Config == nil {
		opts.Config = configuration.Use()
	}
	if opts.Logger == nil {
		opts.Logger = app.Logger()
	}
	svc := BuildServices(&opts)

	app.RegisterServices(
		svc.Propagator,
		svc.Hierarchy,
		svc.Employees,
		svc.Queries,
		svc.Consistency,
	)

	app.RegisterControllers(
		controllers.NewOrgAPIController(app),
	)

	opts.Logger.WithFields(logrus.Fields{
		"snapshot_cache": svc.Cache.Name(),
		"events_stream":  svc.Stream != nil,
	}).Info("org module registered")
	return nil
}

func (m *Module) Name() string {
	return "org"
}
