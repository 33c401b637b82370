package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-ledger/internal/models"
)

func TestNewDatabase_InMemory(t *testing.T) {
	db, err := NewDatabase("file::memory:")
	require.NoError(t, err)
	defer Close(db)

	for _, model := range []interface{}{&models.Holding{}, &models.Trade{}, &models.CapitalFlow{}, &models.EquitySnapshot{}} {
		assert.True(t, db.Migrator().HasTable(model))
	}
}

func TestNewDatabase_ColumnNames(t *testing.T) {
	db, err := NewDatabase("file::memory:")
	require.NoError(t, err)
	defer Close(db)

	testCases := []struct {
		model   interface{}
		columns []string
	}{
		{model: &models.Trade{}, columns: []string{"trade_id", "total_value", "net_amount", "realized_pnl"}},
		{model: &models.EquitySnapshot{}, columns: []string{"total_equity", "total_pnl", "realized_pnl", "unrealized_pnl", "num_positions"}},
		{model: &models.Holding{}, columns: []string{"symbol", "quantity", "avg_entry_price"}},
	}

	for _, tc := range testCases {
		for _, column := range tc.columns {
			assert.True(t, db.Migrator().HasColumn(tc.model, column), column)
		}
	}
}

func TestNewDatabase_KeepsDataAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "portfolio.db")

	db, err := NewDatabase(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.Holding{Symbol: "AAPL", Quantity: 2, AvgEntryPrice: 100}).Error)
	require.NoError(t, Close(db))

	db, err = NewDatabase(dsn)
	require.NoError(t, err)
	defer Close(db)

	var h models.Holding
	require.NoError(t, db.First(&h, "symbol = ?", "AAPL").Error)
	assert.Equal(t, 2.0, h.Quantity)
}

func TestFileDir(t *testing.T) {
	testCases := []struct {
		dsn      string
		expected string
	}{
		{dsn: "file::memory:", expected: ""},
		{dsn: "file:ledger?mode=memory&cache=shared", expected: ""},
		{dsn: "portfolio.db", expected: ""},
		{dsn: "data/portfolio.db", expected: "data"},
		{dsn: "file:data/portfolio.db?_busy_timeout=5000", expected: "data"},
	}

	for _, tc := range testCases {
		t.Run(tc.dsn, func(t *testing.T) {
			assert.Equal(t, tc.expected, fileDir(tc.dsn))
		})
	}
}
