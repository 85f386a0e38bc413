package expense

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/centsible/centsible/pkg/money"
)

type ExpenseDTO struct {
	ID          string      `json:"id"`
	BudgetID    string      `json:"budgetId"`
	Amount      money.Money `json:"amount"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
	Tags        []string    `json:"tags"`
	AuthorID    string      `json:"authorId,omitempty"`
}

type SummaryDTO struct {
	Count        int         `json:"count"`
	TotalSpend   money.Money `json:"totalSpend"`
	AverageSpend money.Money `json:"averageSpend"`
}

type ExpenseHandler struct {
	expenseService Service
}

func NewExpenseHandler(expenseService Service) *ExpenseHandler {
	return &ExpenseHandler{expenseService}
}

func (handler *ExpenseHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	budgetId := mux.Vars(r)["budgetId"]

	expenses, err := handler.expenseService.List(r.Context(), budgetId)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	expensesDTO := make([]ExpenseDTO, 0, len(expenses))
	for _, e := range expenses {
		expensesDTO = append(expensesDTO, ExpenseToDTO(e))
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(expensesDTO); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (handler *ExpenseHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	budgetId := mux.Vars(r)["budgetId"]

	summary, err := handler.expenseService.Summarize(r.Context(), budgetId)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(SummaryDTO{
		Count:        summary.Count,
		TotalSpend:   summary.TotalSpend,
		AverageSpend: summary.AverageSpend,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (handler *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Recording new expense")
	w.Header().Set("Content-Type", "application/json")
	budgetId := mux.Vars(r)["budgetId"]

	var expenseDTO ExpenseDTO
	if err := json.NewDecoder(r.Body).Decode(&expenseDTO); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	expenseDTO.BudgetID = budgetId

	expense, err := DTOToExpense(expenseDTO)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	createdExpense, err := handler.expenseService.Create(r.Context(), expense)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(ExpenseToDTO(createdExpense)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (handler *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	vars := mux.Vars(r)
	expenseId := vars["id"]

	var expenseDTO ExpenseDTO
	if err := json.NewDecoder(r.Body).Decode(&expenseDTO); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if expenseDTO.ID != "" && expenseDTO.ID != expenseId {
		http.Error(w, "Invalid expense id in request body", http.StatusBadRequest)
		return
	}
	expenseDTO.ID = expenseId
	expenseDTO.BudgetID = vars["budgetId"]

	expense, err := DTOToExpense(expenseDTO)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updatedExpense, err := handler.expenseService.Update(r.Context(), expense)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(ExpenseToDTO(updatedExpense)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (handler *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := handler.expenseService.Delete(r.Context(), vars["budgetId"], vars["id"]); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func ExpenseToDTO(e Expense) ExpenseDTO {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return ExpenseDTO{
		ID:          e.ID,
		BudgetID:    e.BudgetID,
		Amount:      e.Amount,
		Description: e.Description,
		Date:        e.OccurredAt.Format(dateLayout),
		Tags:        tags,
		AuthorID:    e.AuthorID,
	}
}

func DTOToExpense(dto ExpenseDTO) (Expense, error) {
	var occurredAt time.Time
	if dto.Date != "" {
		parsed, err := parseDate(dto.Date)
		if err != nil {
			return Expense{}, err
		}
		occurredAt = parsed
	}
	return Expense{
		ID:          dto.ID,
		BudgetID:    dto.BudgetID,
		Amount:      dto.Amount,
		Description: dto.Description,
		OccurredAt:  occurredAt,
		Tags:        dto.Tags,
	}, nil
}
