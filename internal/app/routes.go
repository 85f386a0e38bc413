package app

import (
	"github.com/gorilla/mux"

	"github.com/centsible/centsible/internal/config"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Budgets
	r.HandleFunc("/api/budgets", deps.BudgetHandler.GetAll).Methods("GET")
	r.HandleFunc("/api/budgets", deps.BudgetHandler.Create).Methods("POST")
	r.HandleFunc("/api/budgets/{id}", deps.BudgetHandler.Update).Methods("PUT")
	r.HandleFunc("/api/budgets/{id}", deps.BudgetHandler.Delete).Methods("DELETE")

	// Expenses
	r.HandleFunc("/api/budgets/{budgetId}/expenses", deps.ExpenseHandler.GetAll).Methods("GET")
	r.HandleFunc("/api/budgets/{budgetId}/expenses", deps.ExpenseHandler.Create).Methods("POST")
	r.HandleFunc("/api/budgets/{budgetId}/expenses/summary", deps.ExpenseHandler.GetSummary).Methods("GET")
	r.HandleFunc("/api/budgets/{budgetId}/expenses/{id}", deps.ExpenseHandler.Update).Methods("PUT")
	r.HandleFunc("/api/budgets/{budgetId}/expenses/{id}", deps.ExpenseHandler.Delete).Methods("DELETE")

	// Auth
	r.HandleFunc("/api/auth/signup", deps.AuthHandler.SignUp).Methods("POST")

	// Profile
	r.HandleFunc("/api/profile", deps.ProfileHandler.GetCurrent).Methods("GET")

	// Live change feed
	r.HandleFunc("/api/live", deps.LiveHandler.Stream).Methods("GET")
}
