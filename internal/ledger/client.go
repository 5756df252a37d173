package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/dvloznov/finance-bridge/internal/config"
)

var (
	// ErrMonthNotFound is returned when a budget month does not exist yet.
	ErrMonthNotFound = errors.New("budget month not found")

	// ErrUnauthorized is returned when the server rejects the session token.
	ErrUnauthorized = errors.New("ledger rejected credentials")

	// ErrNoBudget is returned by budget operations before LoadBudget succeeds.
	ErrNoBudget = errors.New("no budget loaded")
)

const (
	tokenHeader          = "X-Ledger-Token"
	budgetPasswordHeader = "X-Budget-Password"
	maxErrorBody         = 512
)

// APIError is a non-2xx response from the ledger server.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: ledger returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// HTTPClient is the concrete implementation of Client that talks JSON to the
// ledger server.
type HTTPClient struct {
	http      *http.Client
	baseURL   string
	password  string
	budgetPwd string
	spentSign config.SpentSign

	mu       sync.RWMutex
	token    string
	budgetID string
}

// NewHTTPClient creates a client from the ledger configuration.
func NewHTTPClient(cfg config.Ledger, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	sign := cfg.SpentSign
	if sign == "" {
		sign = config.SpentNegative
	}
	return &HTTPClient{
		http:      httpClient,
		baseURL:   cfg.ServerURL,
		password:  cfg.Password,
		budgetPwd: cfg.BudgetPassword,
		spentSign: sign,
	}
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Reason string          `json:"reason,omitempty"`
}

// Connect logs in and stores the session token.
func (c *HTTPClient) Connect(ctx context.Context) error {
	var data struct {
		Token string `json:"token"`
	}
	body := map[string]string{"loginMethod": "password", "password": c.password}
	if err := c.do(ctx, "Connect", http.MethodPost, "/account/login", body, &data); err != nil {
		return err
	}
	if data.Token == "" {
		return fmt.Errorf("Connect: %w: empty token", ErrUnauthorized)
	}

	c.mu.Lock()
	c.token = data.Token
	c.budgetID = ""
	c.mu.Unlock()
	return nil
}

// LoadBudget opens budgetID on the server.
func (c *HTTPClient) LoadBudget(ctx context.Context, budgetID string) error {
	path := "/budgets/" + url.PathEscape(budgetID) + "/load"
	if err := c.do(ctx, "LoadBudget", http.MethodPost, path, struct{}{}, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.budgetID = budgetID
	c.mu.Unlock()
	return nil
}

// ImportTransactions imports txs into the given account.
func (c *HTTPClient) ImportTransactions(ctx context.Context, accountID string, txs []Transaction) (ImportResult, error) {
	budget, err := c.budgetPath("ImportTransactions")
	if err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	path := budget + "/accounts/" + url.PathEscape(accountID) + "/transactions/import"
	body := map[string][]Transaction{"transactions": txs}
	if err := c.do(ctx, "ImportTransactions", http.MethodPost, path, body, &result); err != nil {
		return ImportResult{}, err
	}
	return result, nil
}

// Sync pushes pending changes to the server.
func (c *HTTPClient) Sync(ctx context.Context) error {
	budget, err := c.budgetPath("Sync")
	if err != nil {
		return err
	}
	return c.do(ctx, "Sync", http.MethodPost, budget+"/sync", struct{}{}, nil)
}

// Categories lists the budget's categories.
func (c *HTTPClient) Categories(ctx context.Context) ([]Category, error) {
	budget, err := c.budgetPath("Categories")
	if err != nil {
		return nil, err
	}

	var categories []Category
	if err := c.do(ctx, "Categories", http.MethodGet, budget+"/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// BudgetMonth fetches one month and normalizes spent so that outflow is
// negative regardless of the server's convention.
func (c *HTTPClient) BudgetMonth(ctx context.Context, month string) (*BudgetMonth, error) {
	budget, err := c.budgetPath("BudgetMonth")
	if err != nil {
		return nil, err
	}

	var bm BudgetMonth
	err = c.do(ctx, "BudgetMonth", http.MethodGet, budget+"/months/"+url.PathEscape(month), nil, &bm)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("BudgetMonth: %s: %w", month, ErrMonthNotFound)
	}
	if err != nil {
		return nil, err
	}

	if bm.Month == "" {
		bm.Month = month
	}
	for i := range bm.Categories {
		bm.Categories[i].Spent = NormalizeSpent(bm.Categories[i].Spent, c.spentSign)
	}
	return &bm, nil
}

// Shutdown closes the loaded budget and forgets the session.
func (c *HTTPClient) Shutdown(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.budgetID != ""
	c.mu.RUnlock()

	if loaded {
		budget, _ := c.budgetPath("Shutdown")
		if err := c.do(ctx, "Shutdown", http.MethodPost, budget+"/close", struct{}{}, nil); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.token = ""
	c.budgetID = ""
	c.mu.Unlock()
	return nil
}

// NormalizeSpent converts a server spent figure to the outflow-negative
// convention used throughout the bridge.
func NormalizeSpent(spent int64, sign config.SpentSign) int64 {
	if sign == config.SpentPositive {
		return -spent
	}
	return spent
}

func (c *HTTPClient) budgetPath(op string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.budgetID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNoBudget)
	}
	return "/budgets/" + url.PathEscape(c.budgetID), nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}
	c.mu.RUnlock()
	if c.budgetPwd != "" {
		req.Header.Set(budgetPasswordHeader, c.budgetPwd)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s: %w (status %d)", op, ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := string(raw)
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: excerpt}
	}

	if len(raw) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if out == nil {
			return nil
		}
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	if env.Status == "error" {
		return fmt.Errorf("%s: ledger error: %s", op, env.Reason)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decoding data: %w", op, err)
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
