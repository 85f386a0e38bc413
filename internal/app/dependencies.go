package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/centsible/centsible/internal/config"
	"github.com/centsible/centsible/internal/event_bus"
	"github.com/centsible/centsible/internal/utils"
	"github.com/centsible/centsible/pkg/auth"
	"github.com/centsible/centsible/pkg/budget"
	"github.com/centsible/centsible/pkg/collection"
	"github.com/centsible/centsible/pkg/expense"
	"github.com/centsible/centsible/pkg/live"
	"github.com/centsible/centsible/pkg/profile"
	"github.com/centsible/centsible/pkg/realtime"
	"github.com/centsible/centsible/pkg/session"
	"github.com/centsible/centsible/pkg/store"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	AuthClient    *auth.Client
	AuthHandler   *auth.Handler
	Session       auth.Session
	SessionHolder *session.Holder

	Store    *store.Client
	Realtime *realtime.Client
	Bus      *event_bus.EventBus

	BudgetSync    *collection.Synchronizer[budget.Budget]
	BudgetService budget.Service
	BudgetHandler *budget.BudgetHandler

	ExpenseManager *expense.Manager
	ExpenseService expense.Service
	ExpenseHandler *expense.ExpenseHandler

	ProfileService profile.Service
	ProfileHandler *profile.ProfileHandler

	LiveHandler *live.LiveHandler

	Clock utils.Clock
}

// BuildDependencies signs in with the configured account and wires all
// application services and handlers around the resulting session.
func BuildDependencies(ctx context.Context, cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	deps.AuthClient = auth.NewClient(cfg.Backend.URL, cfg.Backend.AnonKey)
	deps.AuthHandler = auth.NewHandler(deps.AuthClient)
	sess, err := deps.AuthClient.SignIn(ctx, cfg.Auth.Email, cfg.Auth.Password)
	if err != nil {
		return nil, fmt.Errorf("could not sign in: %w", err)
	}
	deps.Session = sess
	deps.Bus = event_bus.NewEventBus()
	deps.SessionHolder = session.NewHolder()
	deps.SessionHolder.Subscribe(func(identity *session.Identity) {
		changed := event_bus.IdentityChanged{SignedIn: identity != nil}
		if identity != nil {
			changed.IdentityID = identity.ID
		}
		if err := deps.Bus.Publish(event_bus.NewEvent(ctx, event_bus.IdentityChangedType, changed)); err != nil {
			log.Warnf("identity change notification failed: %v", err)
		}
	})
	deps.SessionHolder.Set(&sess.Identity)

	tokens := deps.AuthClient.TokenSource(ctx, sess)
	deps.Store = store.NewClient(cfg.Backend.URL, cfg.Backend.AnonKey, tokens)
	deps.Realtime = realtime.NewClient(cfg.Backend.URL, cfg.Backend.AnonKey, tokens)

	deps.BudgetSync, err = budget.NewSynchronizer(deps.Store, deps.Realtime, deps.Bus)
	if err != nil {
		return nil, err
	}

	deps.Clock = &utils.SystemClock{}
	deps.ExpenseManager = expense.NewManager(ctx, deps.Store, deps.Realtime, deps.Bus)
	deps.ExpenseService = expense.NewService(deps.ExpenseManager, deps.Store, deps.Store, deps.Clock)
	deps.ExpenseHandler = expense.NewExpenseHandler(deps.ExpenseService)

	deps.BudgetService = budget.NewService(deps.Store, deps.BudgetSync, deps.ExpenseService)
	deps.BudgetHandler = budget.NewBudgetHandler(deps.BudgetService)

	deps.ProfileService = profile.NewService(deps.Store)
	deps.ProfileHandler = profile.NewProfileHandler(deps.ProfileService)

	deps.LiveHandler = live.NewLiveHandler(deps.Bus)

	return deps, nil
}
