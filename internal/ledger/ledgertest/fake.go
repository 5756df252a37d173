// Package ledgertest provides an in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/finance-bridge/internal/ledger"
)

// Fake is an in-memory ledger that deduplicates imports on ImportedID the way
// the real server does. Func fields, when set, replace the default behavior.
type Fake struct {
	ConnectFunc    func(ctx context.Context) error
	LoadBudgetFunc func(ctx context.Context, budgetID string) error
	ImportFunc     func(ctx context.Context, accountID string, txs []ledger.Transaction) (ledger.ImportResult, error)
	SyncFunc       func(ctx context.Context) error
	ShutdownFunc   func(ctx context.Context) error

	CategoryList []ledger.Category
	Months       map[string]*ledger.BudgetMonth

	mu           sync.Mutex
	calls        map[string]int
	transactions map[string]ledger.Transaction
	order        []string
}

// NewFake creates an empty fake ledger.
func NewFake() *Fake {
	return &Fake{
		Months:       make(map[string]*ledger.BudgetMonth),
		calls:        make(map[string]int),
		transactions: make(map[string]ledger.Transaction),
	}
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls returns the number of calls across all operations.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Transactions returns stored transactions in first-import order.
func (f *Fake) Transactions() []ledger.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ledger.Transaction, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.transactions[id])
	}
	return out
}

func (f *Fake) Connect(ctx context.Context) error {
	f.record("Connect")
	if f.ConnectFunc != nil {
		return f.ConnectFunc(ctx)
	}
	return nil
}

func (f *Fake) LoadBudget(ctx context.Context, budgetID string) error {
	f.record("LoadBudget")
	if f.LoadBudgetFunc != nil {
		return f.LoadBudgetFunc(ctx, budgetID)
	}
	return nil
}

func (f *Fake) ImportTransactions(ctx context.Context, accountID string, txs []ledger.Transaction) (ledger.ImportResult, error) {
	f.record("ImportTransactions")
	if f.ImportFunc != nil {
		return f.ImportFunc(ctx, accountID, txs)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transactions == nil {
		f.transactions = make(map[string]ledger.Transaction)
	}

	var result ledger.ImportResult
	for _, tx := range txs {
		existing, ok := f.transactions[tx.ImportedID]
		switch {
		case !ok:
			f.transactions[tx.ImportedID] = tx
			f.order = append(f.order, tx.ImportedID)
			result.Added = append(result.Added, "ledger-"+tx.ImportedID)
		case existing != tx:
			f.transactions[tx.ImportedID] = tx
			result.Updated = append(result.Updated, "ledger-"+tx.ImportedID)
		}
	}
	return result, nil
}

func (f *Fake) Sync(ctx context.Context) error {
	f.record("Sync")
	if f.SyncFunc != nil {
		return f.SyncFunc(ctx)
	}
	return nil
}

func (f *Fake) Categories(ctx context.Context) ([]ledger.Category, error) {
	f.record("Categories")
	return f.CategoryList, nil
}

func (f *Fake) BudgetMonth(ctx context.Context, month string) (*ledger.BudgetMonth, error) {
	f.record("BudgetMonth")
	bm, ok := f.Months[month]
	if !ok {
		return nil, fmt.Errorf("BudgetMonth: %s: %w", month, ledger.ErrMonthNotFound)
	}
	return bm, nil
}

func (f *Fake) Shutdown(ctx context.Context) error {
	f.record("Shutdown")
	if f.ShutdownFunc != nil {
		return f.ShutdownFunc(ctx)
	}
	return nil
}

var _ ledger.Client = (*Fake)(nil)
