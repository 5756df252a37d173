package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvloznov/finance-bridge/internal/config"
)

type fakeServer struct {
	t        *testing.T
	imported []Transaction
	synced   int
	closed   int
	months   map[string]string
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	writeData := func(w http.ResponseWriter, data interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "data": data})
	}
	requireToken := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get(tokenHeader) != "tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}

	mux.HandleFunc("/account/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeData(w, map[string]string{"token": "tok-123"})
	})
	mux.HandleFunc("/budgets/budget-1/load", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		if r.Header.Get(budgetPasswordHeader) != "e2e" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeData(w, nil)
	})
	mux.HandleFunc("/budgets/budget-1/accounts/ledger-acc/transactions/import", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		var body struct {
			Transactions []Transaction `json:"transactions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode import body: %v", err)
		}
		f.imported = append(f.imported, body.Transactions...)
		writeData(w, ImportResult{Added: []string{"tx-1"}})
	})
	mux.HandleFunc("/budgets/budget-1/sync", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		f.synced++
		writeData(w, nil)
	})
	mux.HandleFunc("/budgets/budget-1/categories", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		writeData(w, []Category{{ID: "c1", Name: "Groceries"}, {ID: "c2", Name: "Salary", IsIncome: true}})
	})
	mux.HandleFunc("/budgets/budget-1/months/", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		month := r.URL.Path[len("/budgets/budget-1/months/"):]
		body, ok := f.months[month]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":"error","reason":"month-not-found"}`))
			return
		}
		w.Write([]byte(body))
	})
	mux.HandleFunc("/budgets/budget-1/close", func(w http.ResponseWriter, r *http.Request) {
		f.closed++
		writeData(w, nil)
	})
	return mux
}

func newTestClient(t *testing.T, sign config.SpentSign) (*HTTPClient, *fakeServer) {
	t.Helper()
	fs := &fakeServer{
		t: t,
		months: map[string]string{
			"2026-10": `{"status":"ok","data":{"month":"2026-10","categories":[{"id":"c1","budgeted":10000,"spent":-9500,"balance":500}]}}`,
			"2026-09": `{"status":"ok","data":{"categories":[{"id":"c1","budgeted":10000,"spent":9500}]}}`,
		},
	}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)

	c := NewHTTPClient(config.Ledger{
		ServerURL:      srv.URL,
		Password:       "hunter2",
		BudgetPassword: "e2e",
		Timeout:        5 * time.Second,
		SpentSign:      sign,
	}, nil)
	return c, fs
}

func TestHTTPClient_ImportFlow(t *testing.T) {
	c, fs := newTestClient(t, config.SpentNegative)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.LoadBudget(ctx, "budget-1"); err != nil {
		t.Fatalf("LoadBudget() error = %v", err)
	}

	tx := Transaction{
		Account:       "ledger-acc",
		Date:          "2026-10-16",
		Amount:        -1250,
		PayeeName:     "Tesco",
		ImportedPayee: "Tesco",
		ImportedID:    "fi-1",
	}
	result, err := c.ImportTransactions(ctx, "ledger-acc", []Transaction{tx})
	if err != nil {
		t.Fatalf("ImportTransactions() error = %v", err)
	}
	if !result.Changed() || result.Added[0] != "tx-1" {
		t.Errorf("ImportTransactions() = %+v", result)
	}
	if len(fs.imported) != 1 || fs.imported[0] != tx {
		t.Errorf("server received %+v, want %+v", fs.imported, tx)
	}

	if err := c.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if fs.synced != 1 {
		t.Errorf("synced = %d, want 1", fs.synced)
	}

	cats, err := c.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if len(cats) != 2 || cats[1].Name != "Salary" || !cats[1].IsIncome {
		t.Errorf("Categories() = %+v", cats)
	}

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if fs.closed != 1 {
		t.Errorf("closed = %d, want 1", fs.closed)
	}
	if _, err := c.Categories(ctx); !errors.Is(err, ErrNoBudget) {
		t.Errorf("Categories() after Shutdown error = %v, want ErrNoBudget", err)
	}
}

func TestHTTPClient_ConnectWrongPassword(t *testing.T) {
	c, _ := newTestClient(t, config.SpentNegative)
	c.password = "wrong"

	if err := c.Connect(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Connect() error = %v, want ErrUnauthorized", err)
	}
}

func TestHTTPClient_BudgetOpsRequireLoad(t *testing.T) {
	c, _ := newTestClient(t, config.SpentNegative)

	if _, err := c.ImportTransactions(context.Background(), "ledger-acc", nil); !errors.Is(err, ErrNoBudget) {
		t.Errorf("ImportTransactions() error = %v, want ErrNoBudget", err)
	}
	if err := c.Sync(context.Background()); !errors.Is(err, ErrNoBudget) {
		t.Errorf("Sync() error = %v, want ErrNoBudget", err)
	}
}

func TestHTTPClient_BudgetMonth(t *testing.T) {
	tests := []struct {
		name      string
		sign      config.SpentSign
		month     string
		wantSpent int64
		wantErr   error
	}{
		{"negative convention passes through", config.SpentNegative, "2026-10", -9500, nil},
		{"positive convention is flipped", config.SpentPositive, "2026-09", -9500, nil},
		{"missing month", config.SpentNegative, "2027-01", 0, ErrMonthNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.sign)
			ctx := context.Background()
			if err := c.Connect(ctx); err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			if err := c.LoadBudget(ctx, "budget-1"); err != nil {
				t.Fatalf("LoadBudget() error = %v", err)
			}

			bm, err := c.BudgetMonth(ctx, tt.month)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("BudgetMonth() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("BudgetMonth() error = %v", err)
			}
			if bm.Month != tt.month {
				t.Errorf("Month = %q, want %q", bm.Month, tt.month)
			}
			if got := bm.Categories[0].Spent; got != tt.wantSpent {
				t.Errorf("Spent = %d, want %d", got, tt.wantSpent)
			}
		})
	}
}

func TestHTTPClient_UnauthorizedAfterTokenLoss(t *testing.T) {
	c, _ := newTestClient(t, config.SpentNegative)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.LoadBudget(ctx, "budget-1"); err != nil {
		t.Fatalf("LoadBudget() error = %v", err)
	}

	c.mu.Lock()
	c.token = "expired"
	c.mu.Unlock()

	if err := c.Sync(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Sync() error = %v, want ErrUnauthorized", err)
	}
}

func TestNormalizeSpent(t *testing.T) {
	if got := NormalizeSpent(-500, config.SpentNegative); got != -500 {
		t.Errorf("NormalizeSpent(-500, negative) = %d", got)
	}
	if got := NormalizeSpent(500, config.SpentPositive); got != -500 {
		t.Errorf("NormalizeSpent(500, positive) = %d", got)
	}
	if got := NormalizeSpent(-200, config.SpentPositive); got != 200 {
		t.Errorf("NormalizeSpent(-200, positive) = %d, refunds flip to inflow", got)
	}
}
