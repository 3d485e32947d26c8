// Package application holds the pieces a module registers at startup:
// services looked up by type, HTTP controllers and router middleware.
package application

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

type Controller interface {
	Register(r *mux.Router)
	Key() string
}

type Module interface {
	Register(app Application) error
	Name() string
}

type Application interface {
	DB() *pgxpool.Pool
	Logger() *logrus.Logger
	RegisterServices(services ...any)
	Service(service any) any
	Services() map[reflect.Type]any
	RegisterControllers(controllers ...Controller)
	Controllers() []Controller
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	Middleware() []mux.MiddlewareFunc
	RegisterModules(modules ...Module) error
	Modules() []Module
}

type ApplicationOptions struct {
	Pool   *pgxpool.Pool
	Logger *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &application{
		pool:     opts.Pool,
		logger:   logger,
		services: make(map[reflect.Type]any),
	}
}

type application struct {
	mu          sync.RWMutex
	pool        *pgxpool.Pool
	logger      *logrus.Logger
	services    map[reflect.Type]any
	controllers []Controller
	middleware  []mux.MiddlewareFunc
	modules     []Module
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

// serviceKey maps both T and *T to T so lookups work with a zero value.
func serviceKey(service any) reflect.Type {
	t := reflect.TypeOf(service)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func (app *application) RegisterServices(services ...any) {
	app.mu.Lock()
	defer app.mu.Unlock()
	for _, s := range services {
		app.services[serviceKey(s)] = s
	}
}

// Service returns the registered instance of service's type, e.g.
// app.Service(services.HierarchyService{}).(*services.HierarchyService).
// It panics when nothing of that type was registered.
func (app *application) Service(service any) any {
	app.mu.RLock()
	defer app.mu.RUnlock()
	key := serviceKey(service)
	s, ok := app.services[key]
	if !ok {
		panic(fmt.Sprintf("application: service %v not registered", key))
	}
	return s
}

func (app *application) Services() map[reflect.Type]any {
	app.mu.RLock()
	defer app.mu.RUnlock()
	out := make(map[reflect.Type]any, len(app.services))
	for k, v := range app.services {
		out[k] = v
	}
	return out
}

func (app *application) RegisterControllers(controllers ...Controller) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.controllers = append(app.controllers, controllers...)
}

func (app *application) Controllers() []Controller {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return append([]Controller(nil), app.controllers...)
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.middleware = append(app.middleware, middleware...)
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return append([]mux.MiddlewareFunc(nil), app.middleware...)
}

func (app *application) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.Register(app); err != nil {
			return fmt.Errorf("register module %s: %w", m.Name(), err)
		}
		app.mu.Lock()
		app.modules = append(app.modules, m)
		app.mu.Unlock()
	}
	return nil
}

func (app *application) Modules() []Module {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return append([]Module(nil), app.modules...)
}
