package budget

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/centsible/centsible/pkg/money"
)

type BudgetDTO struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	TargetAmount money.Money `json:"totalAmount"`
	Period       string      `json:"frequency"`
	Kind         string      `json:"type"`
	OwnerID      string      `json:"ownerId,omitempty"`
}

type BudgetHandler struct {
	budgetService Service
}

func NewBudgetHandler(budgetService Service) *BudgetHandler {
	return &BudgetHandler{budgetService}
}

func (handler *BudgetHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	budgets, err := handler.budgetService.List(r.Context())
	if err != nil {
		// A failed bulk fetch is a persistent error state, not an empty list.
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	budgetsDTO := make([]BudgetDTO, 0, len(budgets))
	for _, b := range budgets {
		budgetsDTO = append(budgetsDTO, BudgetToDTO(b))
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(budgetsDTO); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (handler *BudgetHandler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new budget")
	w.Header().Set("Content-Type", "application/json")

	var budgetDTO BudgetDTO
	if err := json.NewDecoder(r.Body).Decode(&budgetDTO); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	createdBudget, err := handler.budgetService.Create(r.Context(), DTOToBudget(budgetDTO))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(BudgetToDTO(createdBudget)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (handler *BudgetHandler) Update(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	budgetId := mux.Vars(r)["id"]

	var budgetDTO BudgetDTO
	if err := json.NewDecoder(r.Body).Decode(&budgetDTO); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if budgetDTO.ID != "" && budgetDTO.ID != budgetId {
		http.Error(w, "Invalid budget id in request body", http.StatusBadRequest)
		return
	}
	budgetDTO.ID = budgetId

	updatedBudget, err := handler.budgetService.Update(r.Context(), DTOToBudget(budgetDTO))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(BudgetToDTO(updatedBudget)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (handler *BudgetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	budgetId := mux.Vars(r)["id"]

	if err := handler.budgetService.Delete(r.Context(), budgetId); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func BudgetToDTO(b Budget) BudgetDTO {
	return BudgetDTO{
		ID:           b.ID,
		Title:        b.Title,
		TargetAmount: b.TargetAmount,
		Period:       string(b.Period),
		Kind:         string(b.Kind),
		OwnerID:      b.OwnerID,
	}
}

func DTOToBudget(dto BudgetDTO) Budget {
	return Budget{
		ID:           dto.ID,
		Title:        dto.Title,
		TargetAmount: dto.TargetAmount,
		Period:       Period(dto.Period),
		Kind:         Kind(dto.Kind),
		OwnerID:      dto.OwnerID,
	}
}
