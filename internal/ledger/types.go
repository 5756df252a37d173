package ledger

import "context"

// Transaction is one ledger transaction in the shape the import endpoint
// accepts. Amount is in signed minor units: negative for outflow.
type Transaction struct {
	Account       string `json:"account"`
	Date          string `json:"date"` // YYYY-MM-DD
	Amount        int64  `json:"amount"`
	PayeeName     string `json:"payee_name"`
	ImportedPayee string `json:"imported_payee"`
	Notes         string `json:"notes,omitempty"`

	// ImportedID is the idempotency key. Re-importing the same id updates or
	// no-ops on the ledger side, never duplicates.
	ImportedID string `json:"imported_id"`
}

// ImportResult lists the ledger ids touched by an import.
type ImportResult struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
}

// Changed reports whether the import added or updated anything.
func (r ImportResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Updated) > 0
}

// Category is a budget category.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	GroupID  string `json:"group_id,omitempty"`
	IsIncome bool   `json:"is_income,omitempty"`
	Hidden   bool   `json:"hidden,omitempty"`
}

// MonthCategory is one category's figures for a budget month, in minor
// units. Spent is always negative for outflow once it has left the client.
type MonthCategory struct {
	ID       string `json:"id"`
	Budgeted int64  `json:"budgeted"`
	Spent    int64  `json:"spent"`
	Balance  int64  `json:"balance"`
}

// BudgetMonth is the budget snapshot for one calendar month.
type BudgetMonth struct {
	Month      string          `json:"month"` // YYYY-MM
	Categories []MonthCategory `json:"categories"`
}

// Client is the remote ledger service.
type Client interface {
	// Connect authenticates against the ledger server.
	Connect(ctx context.Context) error

	// LoadBudget opens the budget dataset all further calls operate on.
	LoadBudget(ctx context.Context, budgetID string) error

	// ImportTransactions imports txs into accountID, deduplicating on ImportedID.
	ImportTransactions(ctx context.Context, accountID string, txs []Transaction) (ImportResult, error)

	// Sync flushes local changes to the server so they survive a restart.
	Sync(ctx context.Context) error

	// Categories lists every budget category.
	Categories(ctx context.Context) ([]Category, error)

	// BudgetMonth fetches one month (YYYY-MM). Returns ErrMonthNotFound when
	// the month has not been materialized.
	BudgetMonth(ctx context.Context, month string) (*BudgetMonth, error)

	// Shutdown closes the budget and releases server-side resources.
	Shutdown(ctx context.Context) error
}
