package budget

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-bridge/internal/config"
	"github.com/dvloznov/finance-bridge/internal/ledger"
	"github.com/dvloznov/finance-bridge/internal/ledger/ledgertest"
	"github.com/dvloznov/finance-bridge/internal/notify"
)

type mockSink struct {
	sent []notify.Notification
	err  error
}

func (m *mockSink) Notify(ctx context.Context, n notify.Notification) error {
	m.sent = append(m.sent, n)
	return m.err
}

func row(name string, budgeted, spent int64) Row {
	return NewRow(ledger.Category{ID: name, Name: name}, ledger.MonthCategory{ID: name, Budgeted: budgeted, Spent: spent})
}

func TestNewRow(t *testing.T) {
	tests := []struct {
		name          string
		budgeted      int64
		spent         int64
		wantAvailable int64
		wantOutflow   int64
		wantRatio     float64
	}{
		{"partly spent", 10000, -9500, 500, 9500, 0.95},
		{"overspent", 10000, -10500, -500, 10500, 1.05},
		{"untouched", 10000, 0, 10000, 0, 0},
		{"no budget no spend", 0, 0, 0, 0, 0},
		{"refund", 10000, 300, 10300, 0, 0},
		{"no budget with spend", 0, -500, -500, 500, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := row("c", tt.budgeted, tt.spent)
			if r.Available != tt.wantAvailable {
				t.Errorf("Available = %d, want %d", r.Available, tt.wantAvailable)
			}
			if r.Outflow != tt.wantOutflow {
				t.Errorf("Outflow = %d, want %d", r.Outflow, tt.wantOutflow)
			}
			if r.Ratio != tt.wantRatio {
				t.Errorf("Ratio = %v, want %v", r.Ratio, tt.wantRatio)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	near := row("Fuel", 10000, -9500)
	over := row("Groceries", 10000, -10500)
	zero := row("Gifts", 0, -500)
	fine := row("Rent", 100000, -50000)

	tests := []struct {
		name           string
		row            Row
		includeZero    bool
		wantOverspent  bool
		wantNearLimit  bool
		wantUnbudgeted bool
	}{
		{"95% used is near limit", near, false, false, true, false},
		{"over budget is overspent", over, false, true, false, false},
		{"zero budget ignored by default", zero, false, false, false, false},
		{"zero budget reported when enabled", zero, true, false, false, true},
		{"half used is fine", fine, true, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Classify([]Row{tt.row}, 0.9, tt.includeZero)
			if got := len(b.Overspent) == 1; got != tt.wantOverspent {
				t.Errorf("overspent = %v, want %v", got, tt.wantOverspent)
			}
			if got := len(b.NearLimit) == 1; got != tt.wantNearLimit {
				t.Errorf("near limit = %v, want %v", got, tt.wantNearLimit)
			}
			if got := len(b.Unbudgeted) == 1; got != tt.wantUnbudgeted {
				t.Errorf("unbudgeted = %v, want %v", got, tt.wantUnbudgeted)
			}
		})
	}
}

func TestBucketsMessage(t *testing.T) {
	b := Classify([]Row{
		row("Groceries", 10000, -10500),
		row("Eating out", 5000, -6000),
		row("Fuel", 10000, -9500),
		row("Gifts", 0, -500),
	}, 0.9, true)

	want := "Overspent: Groceries £105.00/£100.00, Eating out £60.00/£50.00 | " +
		"Near limit: Fuel £95.00/£100.00 | Unbudgeted spend: Gifts £5.00"
	if got := b.Message(); got != want {
		t.Errorf("Message() =\n%q\nwant\n%q", got, want)
	}
}

func TestRows_DefaultsAndIncome(t *testing.T) {
	cats := []ledger.Category{
		{ID: "a", Name: "Groceries"},
		{ID: "b", Name: "New category"},
		{ID: "inc", Name: "Salary", IsIncome: true},
		{ID: "fee", Name: "Payroll fee", IsIncome: true},
	}
	month := &ledger.BudgetMonth{Month: "2026-10", Categories: []ledger.MonthCategory{
		{ID: "a", Budgeted: 100, Spent: -50},
		{ID: "inc", Budgeted: 0, Spent: 300000},
		{ID: "fee", Budgeted: 0, Spent: -500},
	}}

	rows := Rows(cats, month)
	if len(rows) != 4 {
		t.Fatalf("len(rows) = %d, want 4", len(rows))
	}
	if rows[1].Name != "New category" || rows[1].Budgeted != 0 || rows[1].Spent != 0 {
		t.Errorf("missing entry row = %+v, want zeros", rows[1])
	}
	if !rows[2].Income || !rows[3].Income || rows[0].Income {
		t.Errorf("income flags = %v %v %v", rows[0].Income, rows[2].Income, rows[3].Income)
	}

	if b := Classify(rows, 1.0, true); !b.Empty() {
		t.Errorf("Classify() alerted on income rows: %+v", b)
	}

	totals := Sum(rows)
	if totals.Budgeted != 100 || totals.Spent != -50+300000-500 {
		t.Errorf("Sum() = %+v, want income included", totals)
	}
}

func TestSum(t *testing.T) {
	totals := Sum([]Row{row("a", 5000, -3000), row("b", 2000, -2000)})
	if totals.Budgeted != 7000 || totals.Spent != -5000 || totals.Available != 2000 {
		t.Errorf("Sum() = %+v", totals)
	}
	if got, want := totals.Message(), "Budgeted £70.00 | Spent £50.00 | Available £20.00"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}

func newEngine(fake *ledgertest.Fake, sink notify.Sink, includeZero bool) *Engine {
	session := ledger.NewSession(fake, "budget-1", time.Second, zerolog.Nop())
	return NewEngine(session, sink, config.Alerts{Threshold: 0.9, IncludeZeroBudget: includeZero}, zerolog.Nop())
}

func fakeWithMonth() *ledgertest.Fake {
	fake := ledgertest.NewFake()
	fake.CategoryList = []ledger.Category{
		{ID: "groceries", Name: "Groceries"},
		{ID: "fuel", Name: "Fuel"},
	}
	fake.Months["2026-10"] = &ledger.BudgetMonth{Month: "2026-10", Categories: []ledger.MonthCategory{
		{ID: "groceries", Budgeted: 5000, Spent: -3000},
		{ID: "fuel", Budgeted: 2000, Spent: -2000},
	}}
	return fake
}

func TestEngine_EvaluateSendsOneNotification(t *testing.T) {
	sink := &mockSink{}
	e := newEngine(fakeWithMonth(), sink, false)

	report, err := e.Evaluate(context.Background(), "2026-10")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(sink.sent))
	}
	if sink.sent[0].Title != "Budget alert" || sink.sent[0].Message != "Near limit: Fuel £20.00/£20.00" {
		t.Errorf("notification = %+v", sink.sent[0])
	}
	if !report.Notified || len(report.Rows) != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestEngine_EvaluateNothingToReport(t *testing.T) {
	fake := fakeWithMonth()
	fake.Months["2026-10"].Categories[1].Spent = -100
	sink := &mockSink{}

	report, err := newEngine(fake, sink, false).Evaluate(context.Background(), "2026-10")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(sink.sent) != 0 || report.Message != "" {
		t.Errorf("unexpected notification: %+v", sink.sent)
	}
}

func TestEngine_MissingMonthIsSilent(t *testing.T) {
	sink := &mockSink{}
	e := newEngine(fakeWithMonth(), sink, false)

	report, err := e.Evaluate(context.Background(), "2027-01")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !report.MonthMissing || len(sink.sent) != 0 {
		t.Errorf("report = %+v, notifications = %d", report, len(sink.sent))
	}

	summary, err := e.MonthlySummary(context.Background(), "2027-01")
	if err != nil {
		t.Fatalf("MonthlySummary() error = %v", err)
	}
	if !summary.MonthMissing || len(sink.sent) != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestEngine_NotifyFailureIsNotAnError(t *testing.T) {
	sink := &mockSink{err: errors.New("hub down")}
	report, err := newEngine(fakeWithMonth(), sink, false).Evaluate(context.Background(), "2026-10")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if report.Notified || report.NotifyErr == nil {
		t.Errorf("report = %+v", report)
	}
}

func TestEngine_SessionNotReady(t *testing.T) {
	fake := fakeWithMonth()
	fake.ConnectFunc = func(ctx context.Context) error { return errors.New("refused") }

	_, err := newEngine(fake, &mockSink{}, false).Evaluate(context.Background(), "2026-10")
	if !errors.Is(err, ledger.ErrSessionNotReady) {
		t.Errorf("Evaluate() error = %v, want ErrSessionNotReady", err)
	}
	if fake.Calls("Categories") != 0 {
		t.Error("fetched categories without a session")
	}
}

func TestEngine_MonthlySummary(t *testing.T) {
	sink := &mockSink{}
	summary, err := newEngine(fakeWithMonth(), sink, false).MonthlySummary(context.Background(), "2026-10")
	if err != nil {
		t.Fatalf("MonthlySummary() error = %v", err)
	}
	if summary.Totals != (Totals{Budgeted: 7000, Spent: -5000, Available: 2000}) {
		t.Errorf("Totals = %+v", summary.Totals)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(sink.sent))
	}
	n := sink.sent[0]
	if n.Title != "Monthly budget summary" || n.Message != "Budgeted £70.00 | Spent £50.00 | Available £20.00" {
		t.Errorf("notification = %+v", n)
	}
}

func TestCurrentMonth(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:30 UTC on 31 Oct is still October in London (GMT after the clocks change).
	now := time.Date(2026, 10, 31, 23, 30, 0, 0, time.UTC)
	if got := CurrentMonth(now, london); got != "2026-10" {
		t.Errorf("CurrentMonth() = %q, want 2026-10", got)
	}
	// 23:30 UTC on 31 May is 00:30 BST on 1 June.
	now = time.Date(2026, 5, 31, 23, 30, 0, 0, time.UTC)
	if got := CurrentMonth(now, london); got != "2026-06" {
		t.Errorf("CurrentMonth() = %q, want 2026-06", got)
	}
}
