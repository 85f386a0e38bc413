package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/centsible/centsible/internal/config"
)

// Application wires configuration, backend clients, router, and server
// lifecycle.
type Application struct {
	cfg    config.Application
	deps   *Dependencies
	router *mux.Router
	srv    *http.Server
}

// NewApplication signs in with the configured account and constructs the
// full HTTP application, ready to Run().
func NewApplication() (*Application, error) {
	cfg, err := config.Load("./config/application.yaml")
	if err != nil {
		return nil, err
	}

	deps, err := BuildDependencies(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	SetupMiddleware(r, deps, cfg)
	RegisterRoutes(r, deps, cfg)

	if cfg.Frontend.Enabled {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir("frontend")))
	}

	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.Listen,
		WriteTimeout: 0, // the live stream stays open indefinitely
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, deps: deps, router: r, srv: srv}, nil
}

// Run connects to the change feed, activates the signed-in user's budget
// collection, and serves the view API until interrupted. A dropped feed
// connection stops the whole application rather than serving stale data.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.deps.Realtime.Run(ctx)
	})

	group.Go(func() error {
		identity := a.deps.SessionHolder.Current()
		activation, err := a.deps.BudgetSync.Activate(ctx, identity.ID)
		if err != nil {
			return err
		}
		defer activation.Deactivate()
		defer a.deps.ExpenseManager.DeactivateAll()
		<-ctx.Done()
		return ctx.Err()
	})

	group.Go(func() error {
		log.Infof("Starting server on %s", a.srv.Addr)
		if err := a.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	})

	err := group.Wait()

	signOutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if signOutErr := a.deps.AuthClient.SignOut(signOutCtx, a.deps.Session.Token); signOutErr != nil {
		log.Warnf("sign out failed: %v", signOutErr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
