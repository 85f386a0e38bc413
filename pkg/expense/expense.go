package expense

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/centsible/centsible/pkg/money"
	"github.com/centsible/centsible/pkg/store"
)

// Table is the remote table expenses live in.
const Table = "expenses"

// FilterColumn scopes an expense collection to its budget.
const FilterColumn = "budget_id"

// KnownTags is the suggested tag vocabulary offered when recording an
// expense. Tags outside the vocabulary are stored and returned as-is.
var KnownTags = []string{
	"food", "transport", "utilities", "entertainment",
	"health", "travel", "education", "misc",
}

const dateLayout = "2006-01-02"

type Expense struct {
	ID          string
	BudgetID    string
	AuthorID    string
	Amount      money.Money
	Description string
	OccurredAt  time.Time
	Tags        []string
}

func (e Expense) EntityID() string { return e.ID }

// NormalizeTags absorbs the shapes the tags column has accumulated over
// time: a proper array, a JSON-encoded string from older clients, null,
// or garbage. Anything that does not yield a string slice becomes the
// empty slice rather than an error.
func NormalizeTags(v any) []string {
	switch val := v.(type) {
	case nil:
		return []string{}
	case []string:
		return append([]string{}, val...)
	case []any:
		tags := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	case string:
		var tags []string
		if err := json.Unmarshal([]byte(val), &tags); err != nil || tags == nil {
			return []string{}
		}
		return tags
	default:
		return []string{}
	}
}

// FromRow decodes an opaque remote row into an Expense. The date column
// arrives either as a bare date or as a full timestamp.
func FromRow(row store.Row) (Expense, error) {
	id := row.ID()
	if id == "" {
		return Expense{}, errors.New("expense row has no id")
	}
	amount, err := money.FromColumn(row["amount"])
	if err != nil {
		return Expense{}, fmt.Errorf("expense %s has an invalid amount: %w", id, err)
	}

	occurredAt, err := parseDate(row.String("date"))
	if err != nil {
		return Expense{}, fmt.Errorf("expense %s has an invalid date: %w", id, err)
	}

	return Expense{
		ID:          id,
		BudgetID:    row.Field(FilterColumn),
		AuthorID:    row.Field("user_id"),
		Amount:      amount,
		Description: row.String("description"),
		OccurredAt:  occurredAt,
		Tags:        NormalizeTags(row["tags"]),
	}, nil
}

// ToRow is the inverse mapping used for inserts and update patches.
func (e Expense) ToRow() store.Row {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return store.Row{
		"id":          e.ID,
		"budget_id":   e.BudgetID,
		"user_id":     e.AuthorID,
		"amount":      e.Amount,
		"description": e.Description,
		"date":        e.OccurredAt.Format(dateLayout),
		"tags":        tags,
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("date is empty")
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
