package budget

import (
	"errors"
	"fmt"
	"strings"

	"github.com/centsible/centsible/pkg/money"
	"github.com/centsible/centsible/pkg/store"
)

// Table is the remote table budgets live in.
const Table = "budgets"

// FilterColumn scopes a budget collection to its owner.
const FilterColumn = "user_id"

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

type Kind string

const (
	KindPersonal Kind = "personal"
	KindGroup    Kind = "group"
)

type Budget struct {
	ID           string
	OwnerID      string
	Title        string
	TargetAmount money.Money
	Period       Period
	Kind         Kind
}

func (b Budget) EntityID() string { return b.ID }

// FromRow is the explicit decode step from an opaque remote row. Period and
// kind arrive in mixed case from older rows and are normalized; an unknown
// period falls back to month, matching the original display default.
func FromRow(row store.Row) (Budget, error) {
	id := row.ID()
	if id == "" {
		return Budget{}, errors.New("budget row has no id")
	}
	amount, err := money.FromColumn(row["total_amount"])
	if err != nil {
		return Budget{}, fmt.Errorf("budget %s has an invalid target amount: %w", id, err)
	}

	period := Period(strings.ToLower(row.String("frequency")))
	switch period {
	case PeriodDay, PeriodWeek, PeriodMonth:
	default:
		period = PeriodMonth
	}

	kind := Kind(strings.ToLower(row.String("budget_type")))
	if kind != KindGroup {
		kind = KindPersonal
	}

	return Budget{
		ID:           id,
		OwnerID:      row.Field(FilterColumn),
		Title:        row.String("title"),
		TargetAmount: amount,
		Period:       period,
		Kind:         kind,
	}, nil
}

// ToRow is the inverse mapping used for inserts and update patches.
func (b Budget) ToRow() store.Row {
	return store.Row{
		"id":           b.ID,
		"user_id":      b.OwnerID,
		"title":        b.Title,
		"total_amount": b.TargetAmount,
		"frequency":    string(b.Period),
		"budget_type":  string(b.Kind),
	}
}
