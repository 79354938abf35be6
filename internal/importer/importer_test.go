package importer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook renders a header row plus data rows into xlsx bytes.
func buildWorkbook(t *testing.T, header []interface{}, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParse(t *testing.T) {
	t.Run("NormalizesSourceFileHeaders", func(t *testing.T) {
		content := buildWorkbook(t,
			[]interface{}{"Ticker (RIC)", "qunatity", "Execution Price", "Current Price"},
			[]interface{}{"aapl ", 10, 150, 160},
		)

		table, err := Parse(content)

		require.NoError(t, err)
		require.Len(t, table.Rows, 1)
		row := table.Rows[0]
		assert.Equal(t, "AAPL", row.Ticker)
		assert.Equal(t, 10.0, row.Qty)
		assert.Equal(t, 150.0, *row.ExecPrice)
		assert.Equal(t, 160.0, *row.CurrentPrice)
	})

	t.Run("ComputesDerivedFields", func(t *testing.T) {
		content := buildWorkbook(t,
			[]interface{}{"ticker", "quantity", "Execution Price", "Current Price"},
			[]interface{}{"AAPL", 10, 150, 160},
		)

		table, err := Parse(content)

		require.NoError(t, err)
		row := table.Rows[0]
		require.NotNil(t, row.MarketValue)
		assert.Equal(t, 1600.0, *row.MarketValue)
		require.NotNil(t, row.PnlPct)
		assert.InDelta(t, 6.6667, *row.PnlPct, 0.001)
	})

	t.Run("MissingQuantityColumnIsASchemaError", func(t *testing.T) {
		content := buildWorkbook(t,
			[]interface{}{"Ticker (RIC)", "Execution Price", "Current Price"},
			[]interface{}{"AAPL", 150, 160},
		)

		_, err := Parse(content)

		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Contains(t, schemaErr.Missing, "qty")
		assert.Contains(t, schemaErr.Found, "ticker")
	})

	t.Run("NonNumericCellsBecomeAbsent", func(t *testing.T) {
		content := buildWorkbook(t,
			[]interface{}{"ticker", "qty", "Execution Price", "Current Price"},
			[]interface{}{"AAPL", 10, "n/a", 160},
		)

		table, err := Parse(content)

		require.NoError(t, err)
		require.Len(t, table.Rows, 1)
		assert.Nil(t, table.Rows[0].ExecPrice)
		assert.Equal(t, 160.0, *table.Rows[0].CurrentPrice)
		// pnl needs both prices.
		assert.Nil(t, table.Rows[0].PnlPct)
	})

	t.Run("DropsRowsWithoutTickerOrQuantity", func(t *testing.T) {
		content := buildWorkbook(t,
			[]interface{}{"ticker", "qty", "Execution Price", "Current Price"},
			[]interface{}{"AAPL", 10, 150, 160},
			[]interface{}{"", 5, 100, 110},
			[]interface{}{"MSFT", "lots", 100, 110},
		)

		table, err := Parse(content)

		require.NoError(t, err)
		require.Len(t, table.Rows, 1)
		assert.Equal(t, "AAPL", table.Rows[0].Ticker)
	})

	t.Run("KeepsOptionalColumns", func(t *testing.T) {
		content := buildWorkbook(t,
			[]interface{}{"ticker", "qty", "Company Name", "Sector", "Execution Price", "Current Price", "Daily Change (%)"},
			[]interface{}{"AAPL", 10, "Apple Inc.", "Tech", 150, 160, 1.2},
		)

		table, err := Parse(content)

		require.NoError(t, err)
		row := table.Rows[0]
		assert.Equal(t, "Apple Inc.", row.Company)
		assert.Equal(t, "Tech", row.Sector)
		require.NotNil(t, row.DailyChangePct)
		assert.Equal(t, 1.2, *row.DailyChangePct)
	})

	t.Run("GarbageBytesFailToOpen", func(t *testing.T) {
		_, err := Parse([]byte("not a spreadsheet"))
		assert.Error(t, err)
	})
}

func TestParseLedger(t *testing.T) {
	t.Run("RequiresOnlyTickerAndQuantity", func(t *testing.T) {
		content := buildWorkbook(t,
			[]interface{}{"Ticker (RIC)", "quantity"},
			[]interface{}{"aapl", 10},
			[]interface{}{"msft", 5},
		)

		rows, err := ParseLedger(content)

		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "AAPL", rows[0].Ticker)
		assert.Equal(t, 10.0, rows[0].Qty)
		assert.Nil(t, rows[0].ExecPrice)
	})

	t.Run("FullPipelineStillRequiresPrices", func(t *testing.T) {
		content := buildWorkbook(t,
			[]interface{}{"Ticker (RIC)", "quantity"},
			[]interface{}{"AAPL", 10},
		)

		_, err := Parse(content)

		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.ElementsMatch(t, []string{"exec_price", "current_price"}, schemaErr.Missing)
	})

	t.Run("CarriesPricesWhenPresent", func(t *testing.T) {
		content := buildWorkbook(t,
			[]interface{}{"ticker", "qty", "Execution Price", "Current Price"},
			[]interface{}{"AAPL", 10, 150, 160},
		)

		rows, err := ParseLedger(content)

		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 150.0, *rows[0].ExecPrice)
		assert.Equal(t, 160.0, *rows[0].CurrentPrice)
	})
}
