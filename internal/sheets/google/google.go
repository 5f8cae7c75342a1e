package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fatura/internal/core"
	ports "fatura/internal/sheets"
)

const (
	DefaultLedgerSheet = "Registros"
	DefaultBudgetSheet = "Orcamento"

	ledgerColumns = "A:J"
	budgetColumns = "A:B"
)

// Config selects the spreadsheet and how to authenticate against it.
type Config struct {
	SpreadsheetID      string
	LedgerSheet        string
	BudgetSheet        string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerSheet   string
	budgetSheet   string
}

var (
	_ ports.LedgerAppender      = (*Client)(nil)
	_ ports.LedgerBatchAppender = (*Client)(nil)
	_ ports.LedgerReader        = (*Client)(nil)
	_ ports.BudgetReader        = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg), nil
}

// NewWithService wraps an existing service, applying default sheet names.
func NewWithService(svc *gsheet.Service, cfg Config) *Client {
	ledger := strings.TrimSpace(cfg.LedgerSheet)
	if ledger == "" {
		ledger = DefaultLedgerSheet
	}
	budget := strings.TrimSpace(cfg.BudgetSheet)
	if budget == "" {
		budget = DefaultBudgetSheet
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		ledgerSheet:   ledger,
		budgetSheet:   budget,
	}
}

// newSheetsService reads service account credentials from inline JSON, a file,
// or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	creds, err := goauth.CredentialsFromJSON(ctx, credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	// oauth2 wraps the retrying pooled client picked up from the context.
	baseCtx := context.WithValue(ctx, oauth2.HTTPClient, newRetryingHTTPClient())
	httpClient := oauth2.NewClient(baseCtx, creds.TokenSource)

	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "project", creds.ProjectID)
	return svc, nil
}

func loadCredentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newRetryingHTTPClient retries 429 and 5xx responses over a pooled transport.
func newRetryingHTTPClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = newHTTPClientWithPooling()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = slog.Default()
	return rc.StandardClient()
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// AppendEntry appends one row and returns the updated A1 range.
func (c *Client) AppendEntry(ctx context.Context, e core.LedgerEntry) (string, error) {
	return c.append(ctx, [][]any{entryRow(e)})
}

// AppendEntries sends all rows in a single append request, so rows of one
// purchase stay contiguous even with several writers. The API applies the
// request whole or not at all.
func (c *Client) AppendEntries(ctx context.Context, entries []core.LedgerEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, entryRow(e))
	}
	if _, err := c.append(ctx, rows); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (c *Client) append(ctx context.Context, rows [][]any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", c.ledgerSheet, ledgerColumns)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.ledgerSheet, err)
	}
	if resp.Updates != nil {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

func (c *Client) ListEntries(ctx context.Context) ([]core.LedgerEntry, error) {
	values, err := c.read(ctx, c.ledgerSheet, ledgerColumns)
	if err != nil {
		return nil, err
	}
	entries, skipped := parseLedgerRows(values)
	if skipped > 0 {
		slog.WarnContext(ctx, "Ledger rows skipped", "sheet", c.ledgerSheet, "count", skipped)
	}
	return entries, nil
}

func (c *Client) ListBudget(ctx context.Context) ([]core.BudgetLimit, error) {
	values, err := c.read(ctx, c.budgetSheet, budgetColumns)
	if err != nil {
		return nil, err
	}
	limits, unparsed := parseBudgetRows(values)
	if unparsed > 0 {
		slog.WarnContext(ctx, "Budget limits unreadable, counted as zero", "sheet", c.budgetSheet, "count", unparsed)
	}
	return limits, nil
}

func (c *Client) read(ctx context.Context, sheet, cols string) ([][]any, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", sheet, cols)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}
