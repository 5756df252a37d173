package archive

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const importsTable = "ledger_imports"

// ImportRecord describes one transaction the ledger accepted.
type ImportRecord struct {
	DeliveryID         string
	ProviderAccountUID string
	LedgerAccountID    string
	Currency           string
	ImportedID         string
	Date               string // YYYY-MM-DD
	AmountMinor        int64
	Payee              string
	Added              []string
	Updated            []string
	ImportedAt         time.Time
}

// ImportRow is the BigQuery row for <dataset>.ledger_imports.
type ImportRow struct {
	ImportedID         string              `bigquery:"imported_id"`          // REQUIRED
	DeliveryID         bigquery.NullString `bigquery:"delivery_id"`          // NULLABLE
	ProviderAccountUID string              `bigquery:"provider_account_uid"` // REQUIRED
	LedgerAccountID    string              `bigquery:"ledger_account_id"`    // REQUIRED
	TransactionDate    civil.Date          `bigquery:"transaction_date"`     // REQUIRED
	Amount             *big.Rat            `bigquery:"amount"`               // REQUIRED NUMERIC
	AmountMinor        int64               `bigquery:"amount_minor"`         // REQUIRED
	Currency           string              `bigquery:"currency"`             // REQUIRED
	Payee              string              `bigquery:"payee"`                // REQUIRED
	Outcome            string              `bigquery:"outcome"`              // added | updated
	LedgerIDs          []string            `bigquery:"ledger_ids"`           // REPEATED
	ImportedTS         time.Time           `bigquery:"imported_ts"`          // REQUIRED
}

// ToRow converts a record into its BigQuery row.
func ToRow(rec ImportRecord) (*ImportRow, error) {
	date, err := civil.ParseDate(rec.Date)
	if err != nil {
		return nil, fmt.Errorf("ToRow: transaction date %q: %w", rec.Date, err)
	}

	outcome, ids := "added", rec.Added
	if len(rec.Added) == 0 {
		outcome, ids = "updated", rec.Updated
	}

	row := &ImportRow{
		ImportedID:         rec.ImportedID,
		ProviderAccountUID: rec.ProviderAccountUID,
		LedgerAccountID:    rec.LedgerAccountID,
		TransactionDate:    date,
		Amount:             big.NewRat(rec.AmountMinor, 100),
		AmountMinor:        rec.AmountMinor,
		Currency:           rec.Currency,
		Payee:              rec.Payee,
		Outcome:            outcome,
		LedgerIDs:          ids,
		ImportedTS:         rec.ImportedAt.UTC(),
	}
	if rec.DeliveryID != "" {
		row.DeliveryID = bigquery.NullString{StringVal: rec.DeliveryID, Valid: true}
	}
	return row, nil
}

// ImportLog is the concrete BigQuery audit log. It holds a shared client.
type ImportLog struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewImportLog creates an ImportLog writing to project.dataset.ledger_imports.
func NewImportLog(ctx context.Context, project, dataset string, opts ...option.ClientOption) (*ImportLog, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewImportLog: creating client: %w", err)
	}
	return &ImportLog{client: client, project: project, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (l *ImportLog) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// Record inserts one audit row. The insert id makes BigQuery drop retried
// duplicates of the same outcome.
func (l *ImportLog) Record(ctx context.Context, rec ImportRecord) error {
	row, err := ToRow(rec)
	if err != nil {
		return err
	}

	table := l.client.DatasetInProject(l.project, l.dataset).Table(importsTable)
	saver := &bigquery.StructSaver{
		Struct:   row,
		InsertID: row.ImportedID + ":" + row.Outcome,
	}
	if err := table.Inserter().Put(ctx, saver); err != nil {
		return fmt.Errorf("Record: inserting row: %w", err)
	}
	return nil
}

// ImportsSchema is the table schema inferred from ImportRow.
func ImportsSchema() (bigquery.Schema, error) {
	schema, err := bigquery.InferSchema(ImportRow{})
	if err != nil {
		return nil, fmt.Errorf("ImportsSchema: %w", err)
	}
	return schema, nil
}

// EnsureTable creates the dataset and the ledger_imports table when they do
// not exist. It reports whether the table was created.
func (l *ImportLog) EnsureTable(ctx context.Context, location string) (bool, error) {
	dataset := l.client.DatasetInProject(l.project, l.dataset)
	if _, err := dataset.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return false, fmt.Errorf("EnsureTable: dataset metadata: %w", err)
		}
		if err := dataset.Create(ctx, &bigquery.DatasetMetadata{Location: location}); err != nil {
			return false, fmt.Errorf("EnsureTable: create dataset: %w", err)
		}
	}

	table := dataset.Table(importsTable)
	if _, err := table.Metadata(ctx); err == nil {
		return false, nil
	} else if !isNotFound(err) {
		return false, fmt.Errorf("EnsureTable: table metadata: %w", err)
	}

	schema, err := ImportsSchema()
	if err != nil {
		return false, err
	}
	meta := &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Field: "transaction_date"},
		Clustering:       &bigquery.Clustering{Fields: []string{"ledger_account_id"}},
	}
	if err := table.Create(ctx, meta); err != nil {
		return false, fmt.Errorf("EnsureTable: create table: %w", err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// ClientOptions builds GCP client options from an optional credentials file.
func ClientOptions(credentialsFile string) []option.ClientOption {
	if credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}
