package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"moneyflow/internal/core"
	ports "moneyflow/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and the service account used to write it.
type Config struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	ServiceAccountFile string
	SheetPrefix        string
}

// valuesAPI is the slice of the Sheets API the exporter uses.
type valuesAPI interface {
	sheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	addSheet(ctx context.Context, spreadsheetID, title string) error
	clear(ctx context.Context, spreadsheetID, rng string) error
	update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
}

// Exporter writes one tab per user and rewrites it on every export.
type Exporter struct {
	api           valuesAPI
	spreadsheetID string
	sheetPrefix   string
	now           func() time.Time
}

var _ ports.LedgerExporter = (*Exporter)(nil)

// New creates an Exporter authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID)

	return newExporter(serviceAPI{svc: svc}, spreadsheetID, cfg.SheetPrefix), nil
}

func newExporter(api valuesAPI, spreadsheetID, prefix string) *Exporter {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Ledger"
	}
	return &Exporter{
		api:           api,
		spreadsheetID: spreadsheetID,
		sheetPrefix:   prefix,
		now:           time.Now,
	}
}

// loadCredentials prefers inline JSON, then a file path, then the standard
// GOOGLE_APPLICATION_CREDENTIALS variable.
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
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ExportLedger replaces the user's tab with a fresh report.
func (e *Exporter) ExportLedger(ctx context.Context, l core.Ledger) (string, error) {
	if e.api == nil {
		return "", errors.New("sheets service not initialized")
	}
	if strings.TrimSpace(l.UserID) == "" {
		return "", errors.New("ledger without user id")
	}

	title := ports.SheetName(e.sheetPrefix, l.UserID)
	if err := e.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	quoted := quoteSheet(title)
	if err := e.api.clear(ctx, e.spreadsheetID, quoted+"!A:Z"); err != nil {
		return "", fmt.Errorf("clear sheet %s: %w", title, err)
	}

	rows := ports.BuildReport(l, e.now())
	if err := e.api.update(ctx, e.spreadsheetID, quoted+"!A1", rows); err != nil {
		return "", fmt.Errorf("write sheet %s: %w", title, err)
	}

	return fmt.Sprintf("%s!A1:E%d", quoted, len(rows)), nil
}

func (e *Exporter) ensureSheet(ctx context.Context, title string) error {
	titles, err := e.api.sheetTitles(ctx, e.spreadsheetID)
	if err != nil {
		return fmt.Errorf("list sheets: %w", err)
	}
	for _, t := range titles {
		if t == title {
			return nil
		}
	}
	if err := e.api.addSheet(ctx, e.spreadsheetID, title); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	slog.InfoContext(ctx, "Created ledger sheet", "sheet", title)
	return nil
}

// quoteSheet quotes a tab title for A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// serviceAPI adapts the generated client to valuesAPI.
type serviceAPI struct {
	svc *gsheet.Service
}

func (s serviceAPI) sheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	resp, err := s.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}

func (s serviceAPI) addSheet(ctx context.Context, spreadsheetID, title string) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	_, err := s.svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

func (s serviceAPI) clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (s serviceAPI) update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	vr := &gsheet.ValueRange{Values: values}
	_, err := s.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}
