package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/distribution/archiver/api/errcode"
	v1 "github.com/distribution/archiver/api/v1"
	"github.com/distribution/archiver/archive"
	"github.com/distribution/archiver/auth"
	"github.com/distribution/archiver/cluster"
	"github.com/distribution/archiver/configuration"
	"github.com/distribution/archiver/health"
	"github.com/distribution/archiver/health/checks"
	"github.com/distribution/archiver/internal/dcontext"
	"github.com/distribution/archiver/internal/uuid"
	"github.com/distribution/archiver/store"
	"github.com/distribution/archiver/store/factory"
)

// App is a global archiver application object. Shared resources can be
// placed on this object that will be accessible from all requests. Any
// writable fields should be protected.
type App struct {
	context.Context

	Config *configuration.Configuration

	// InstanceID is a unique id assigned to the application on each creation.
	// Provides information in the logs and context to identify restarts.
	InstanceID string

	router           *mux.Router           // main application router, configured with dispatchers
	store            store.Store           // store is the content store shared by every batch
	cluster          cluster.Cluster       // cluster pins finished directories
	orchestrator     *archive.Orchestrator // orchestrator runs the batches
	statuses         *archive.StatusReporter
	accessController auth.AccessController // main access controller for application

	shutdown sync.Once
}

// NewApp takes a configuration and returns a configured app, ready to serve
// requests. The app only implements ServeHTTP and can be wrapped in other
// handlers accordingly.
func NewApp(ctx context.Context, config *configuration.Configuration) *App {
	app := &App{
		Config:     config,
		Context:    ctx,
		InstanceID: uuid.NewString(),
		router:     v1.RouterWithPrefix(config.HTTP.Prefix),
	}

	app.Context = dcontext.WithLogger(app.Context, dcontext.GetLogger(app, "app.id"))

	// Register the handler dispatchers.
	app.register(v1.RouteNameBase, func(ctx *Context, r *http.Request) http.Handler {
		return http.HandlerFunc(apiBase)
	})
	app.register(v1.RouteNameAdd, addDispatcher)
	app.register(v1.RouteNameCheckStatus, checkStatusDispatcher)

	var err error
	storeParams := config.Store.Parameters()
	if storeParams == nil {
		storeParams = make(configuration.Parameters)
	}
	app.store, err = factory.Create(app, config.Store.Type(), storeParams)
	if err != nil {
		panic(err)
	}

	app.cluster, err = cluster.Create(app, config.Cluster.Type(), config.Cluster.Parameters())
	if err != nil {
		panic(err)
	}
	if config.HTTP.Debug.Prometheus.Enabled {
		app.cluster = cluster.NewPrometheusCluster(app.cluster)
	}

	app.orchestrator, err = archive.NewOrchestrator(app.store, app.cluster, archive.OptionsFromConfiguration(config.Archive))
	if err != nil {
		panic(err)
	}

	app.statuses = archive.NewStatusReporter(app.cluster, config.Archive.StatusCacheTTL)
	app.statuses.Start()

	dcontext.GetLogger(app).Infof("using %q store and %q cluster", config.Store.Type(), config.Cluster.Type())

	authType := config.Auth.Type()
	if authType != "" && !strings.EqualFold(authType, "none") {
		accessController, err := auth.GetAccessController(authType, config.Auth.Parameters())
		if err != nil {
			panic(fmt.Sprintf("unable to configure authorization (%s): %v", authType, err))
		}
		app.accessController = accessController
		dcontext.GetLogger(app).Debugf("configured %q access controller", authType)
	}

	return app
}

// Value intercepts calls context.Context.Value, returning the current app id,
// if requested.
func (app *App) Value(key any) any {
	switch key {
	case "app.id":
		return app.InstanceID
	}

	return app.Context.Value(key)
}

// RegisterHealthChecks is an awful hack to defer health check registration
// control to callers. This should only ever be called once per archiver
// process, typically in a main function. The correct way would be register
// health checks outside of app, since multiple apps may exist in the same
// process. Because the configuration and app are tightly coupled,
// implementing this properly will require a refactor. This method may panic
// if called twice in the same process.
func (app *App) RegisterHealthChecks(healthRegistries ...*health.Registry) {
	if len(healthRegistries) > 1 {
		panic("RegisterHealthChecks called with more than one registry")
	}
	healthRegistry := health.DefaultRegistry
	if len(healthRegistries) == 1 {
		healthRegistry = healthRegistries[0]
	}

	if app.Config.Health.StoreDriver.Enabled {
		app.pollHealth(healthRegistry, "store_"+app.Config.Store.Type(),
			checks.StoreChecker(app.store),
			app.Config.Health.StoreDriver.Interval,
			app.Config.Health.StoreDriver.Threshold)
	}

	if app.Config.Health.Cluster.Enabled {
		app.pollHealth(healthRegistry, "cluster_"+app.Config.Cluster.Type(),
			checks.ClusterChecker(app.cluster),
			app.Config.Health.Cluster.Interval,
			app.Config.Health.Cluster.Threshold)
	}
}

func (app *App) pollHealth(registry *health.Registry, name string, check health.Checker, interval time.Duration, threshold int) {
	var updater health.Updater
	if threshold != 0 {
		updater = health.NewThresholdStatusUpdater(threshold)
	} else {
		updater = health.NewStatusUpdater()
	}
	registry.Register(name, updater)

	dcontext.GetLogger(app).Infof("polling %s health every %s", name, interval)
	go health.Poll(app, updater, check, interval)
}

// Shutdown releases the background resources held by the app. It is safe
// to call more than once.
func (app *App) Shutdown() {
	app.shutdown.Do(app.statuses.Stop)
}

// register a handler with the application, by route name. The handler will be
// passed through the application filters and context will be constructed at
// request time.
func (app *App) register(routeName string, dispatch dispatchFunc) {
	app.router.GetRoute(routeName).Handler(app.dispatcher(routeName, dispatch))
}

func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close() // ensure that request body is always closed.

	// Prepare the context with our own little decorations.
	ctx := r.Context()
	ctx = dcontext.WithRequest(ctx, r)
	ctx, w = dcontext.WithResponseWriter(ctx, w)
	ctx = dcontext.WithLogger(ctx, dcontext.GetRequestLogger(ctx))
	r = r.WithContext(ctx)

	// Set configured response headers.
	for headerName, headerValues := range app.Config.HTTP.Headers {
		for _, value := range headerValues {
			w.Header().Add(headerName, value)
		}
	}

	app.router.ServeHTTP(w, r)
}

// dispatchFunc takes a context and request and returns a constructed handler
// for the route. The dispatcher will use this to dynamically create request
// specific handlers for each endpoint without creating a new router for each
// request.
type dispatchFunc func(ctx *Context, r *http.Request) http.Handler

// dispatcher returns a handler that constructs a request specific context and
// handler, using the dispatch factory function.
func (app *App) dispatcher(routeName string, dispatch dispatchFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		context := app.context(r)
		start := time.Now()

		defer func() {
			status, _ := context.Value("http.response.status").(int)
			observeRequest(routeName, status, start)
			dcontext.GetResponseLogger(context).Infof("response completed")
		}()

		if err := app.authorized(w, r, context); err != nil {
			dcontext.GetLogger(context).Warnf("error authorizing context: %v", err)
			return
		}

		// sync up context on the request.
		r = r.WithContext(context)
		dispatch(context, r).ServeHTTP(w, r)

		// Automated error response handling here. Handlers may return their
		// own errors if they need different behavior.
		if context.Errors.Len() > 0 {
			if err := errcode.ServeJSON(w, context.Errors); err != nil {
				dcontext.GetLogger(context).Errorf("error serving error json: %v (from %v)", err, context.Errors)
			}

			app.logError(context, context.Errors)
		}
	})
}

func (app *App) logError(ctx context.Context, errors errcode.Errors) {
	for _, e := range errors {
		var c context.Context

		switch ex := e.(type) {
		case errcode.Error:
			c = context.WithValue(ctx, errCodeKey{}, ex.Code)
			c = context.WithValue(c, errMessageKey{}, ex.Message)
			c = context.WithValue(c, errDetailKey{}, ex.Detail)
		case errcode.ErrorCode:
			c = context.WithValue(ctx, errCodeKey{}, ex)
			c = context.WithValue(c, errMessageKey{}, ex.Message())
		default:
			// just normal go 'error'
			c = context.WithValue(ctx, errCodeKey{}, errcode.ErrorCodeUnknown)
			c = context.WithValue(c, errMessageKey{}, ex.Error())
		}

		c = dcontext.WithLogger(c, dcontext.GetLogger(c,
			errCodeKey{},
			errMessageKey{},
			errDetailKey{}))
		dcontext.GetResponseLogger(c).Errorf("response completed with error")
	}
}

type errCodeKey struct{}

func (errCodeKey) String() string { return "err.code" }

type errMessageKey struct{}

func (errMessageKey) String() string { return "err.message" }

type errDetailKey struct{}

func (errDetailKey) String() string { return "err.detail" }

// context constructs the context object for the application. This only be
// called once per request.
func (app *App) context(r *http.Request) *Context {
	return &Context{
		App:     app,
		Context: r.Context(),
	}
}

// authorized checks if the request can proceed. The base route is always
// allowed so that clients can check the api. An error will be returned if
// access is not available.
func (app *App) authorized(w http.ResponseWriter, r *http.Request, context *Context) error {
	if app.accessController == nil || !authRequired(r) {
		return nil // access controller is not enabled.
	}

	dcontext.GetLogger(context).Debug("authorizing request")

	ctx, err := app.accessController.Authorized(context.Context)
	if err != nil {
		switch err := err.(type) {
		case auth.Challenge:
			// Add the appropriate WWW-Auth header
			err.SetHeaders(r, w)

			if err := errcode.ServeJSON(w, errcode.ErrorCodeUnauthorized.WithDetail(nil)); err != nil {
				dcontext.GetLogger(context).Errorf("error serving error json: %v (from %v)", err, context.Errors)
			}
		default:
			// This condition is a potential security problem either in
			// the configuration or whatever is backing the access
			// controller. Just return a bad request with no information
			// to avoid exposure. The request should not proceed.
			dcontext.GetLogger(context).Errorf("error checking authorization: %v", err)
			w.WriteHeader(http.StatusBadRequest)
		}

		return err
	}

	dcontext.GetLogger(ctx, auth.UserNameKey).Info("authorized request")
	context.Context = ctx
	return nil
}

// authRequired returns true if the route is gated by the access controller.
func authRequired(r *http.Request) bool {
	route := mux.CurrentRoute(r)
	return route == nil || route.GetName() != v1.RouteNameBase
}

// apiBase answers the liveness check of the api.
func apiBase(w http.ResponseWriter, r *http.Request) {
	const body = "API"

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", fmt.Sprint(len(body)))

	fmt.Fprint(w, body)
}
