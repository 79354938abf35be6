// Package importer parses uploaded spreadsheets of holdings into normalized
// rows. It reads the first sheet of an Excel-compatible file, resolves the
// source file's header spellings (including a known typo) to snake_case
// column names, and coerces numeric cells leniently: a non-numeric cell
// becomes an absent value, never a parse failure.
package importer

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/NadavAzoulay124/portfolio.AI/internal/models"
	"github.com/NadavAzoulay124/portfolio.AI/internal/portfolio"
	"github.com/xuri/excelize/v2"
)

// columnAliases maps known source-file headers (lower-cased) to the
// canonical column names. Headers not listed here are kept lower-cased.
var columnAliases = map[string]string{
	"ticker (ric)":            "ticker",
	"company name":            "company",
	"qunatity":                "qty", // typo present in the source files
	"quantity":                "qty",
	"qty":                     "qty",
	"sector":                  "sector",
	"execution price":         "exec_price",
	"current price":           "current_price",
	"daily change (%)":        "daily_change_pct",
	"change since traded (%)": "since_traded_pct",
}

// SchemaError reports required columns that are absent after alias
// resolution.
type SchemaError struct {
	Missing []string
	Found   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %v, found: %v", e.Missing, e.Found)
}

// Row is one normalized holding from an uploaded spreadsheet. The two
// derived fields are computed at parse time and never persisted.
type Row struct {
	Ticker         string   `json:"ticker"`
	Company        string   `json:"company,omitempty"`
	Sector         string   `json:"sector,omitempty"`
	Qty            float64  `json:"qty"`
	ExecPrice      *float64 `json:"exec_price"`
	CurrentPrice   *float64 `json:"current_price"`
	DailyChangePct *float64 `json:"daily_change_pct,omitempty"`
	SinceTradedPct *float64 `json:"since_traded_pct,omitempty"`
	MarketValue    *float64 `json:"market_value,omitempty"`
	PnlPct         *float64 `json:"pnl_pct,omitempty"`
}

// Table is an ordered set of parsed rows, kept server-side for read-back.
type Table struct {
	Rows []Row `json:"rows"`
}

// Parse runs the full pipeline: it requires ticker, qty and both price
// columns, and computes the derived market_value and pnl_pct per row.
func Parse(content []byte) (*Table, error) {
	header, records, err := readFirstSheet(content)
	if err != nil {
		return nil, err
	}
	cols, err := resolveColumns(header, []string{"ticker", "qty", "exec_price", "current_price"})
	if err != nil {
		return nil, err
	}

	table := &Table{Rows: []Row{}}
	for _, rec := range records {
		row, ok := buildRow(rec, cols)
		if !ok {
			continue
		}
		if row.CurrentPrice != nil {
			mv := row.Qty * *row.CurrentPrice
			row.MarketValue = &mv
		}
		if row.CurrentPrice != nil && row.ExecPrice != nil && *row.ExecPrice != 0 {
			pnl := (*row.CurrentPrice - *row.ExecPrice) / *row.ExecPrice * 100.0
			row.PnlPct = &pnl
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// ParseLedger runs the bulk-load pipeline: only ticker and qty are
// required, and the output is ready to hand to the ledger's Replace.
func ParseLedger(content []byte) ([]models.Position, error) {
	header, records, err := readFirstSheet(content)
	if err != nil {
		return nil, err
	}
	cols, err := resolveColumns(header, []string{"ticker", "qty"})
	if err != nil {
		return nil, err
	}

	positions := []models.Position{}
	for _, rec := range records {
		row, ok := buildRow(rec, cols)
		if !ok {
			continue
		}
		positions = append(positions, models.Position{
			Ticker:       row.Ticker,
			Qty:          row.Qty,
			ExecPrice:    row.ExecPrice,
			CurrentPrice: row.CurrentPrice,
		})
	}
	return positions, nil
}

// readFirstSheet opens the workbook and returns the header row and the
// data rows of its first sheet.
func readFirstSheet(content []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, fmt.Errorf("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %q is empty", sheet)
	}
	return rows[0], rows[1:], nil
}

// resolveColumns aliases the header case-insensitively into a column-name →
// index map and checks the required set.
func resolveColumns(header []string, required []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		if name == "" {
			continue
		}
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}

	var missing []string
	for _, r := range required {
		if _, ok := cols[r]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		found := make([]string, 0, len(cols))
		for name := range cols {
			found = append(found, name)
		}
		sort.Strings(found)
		return nil, &SchemaError{Missing: missing, Found: found}
	}
	return cols, nil
}

// buildRow normalizes one record. It reports ok=false for rows that are
// missing a ticker or a usable quantity, which the caller drops.
func buildRow(rec []string, cols map[string]int) (Row, bool) {
	ticker := portfolio.NormalizeTicker(cell(rec, cols, "ticker"))
	qty := number(rec, cols, "qty")
	if ticker == "" || qty == nil {
		return Row{}, false
	}
	return Row{
		Ticker:         ticker,
		Company:        strings.TrimSpace(cell(rec, cols, "company")),
		Sector:         strings.TrimSpace(cell(rec, cols, "sector")),
		Qty:            *qty,
		ExecPrice:      number(rec, cols, "exec_price"),
		CurrentPrice:   number(rec, cols, "current_price"),
		DailyChangePct: number(rec, cols, "daily_change_pct"),
		SinceTradedPct: number(rec, cols, "since_traded_pct"),
	}, true
}

func cell(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// number coerces a cell to a float. Absent columns, short rows, and
// non-numeric values all coerce to nil.
func number(rec []string, cols map[string]int, name string) *float64 {
	raw := strings.TrimSpace(cell(rec, cols, name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}
