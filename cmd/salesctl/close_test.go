package main

import (
	"bytes"
	"testing"

	"github.com/erp/salesrecon/internal/application/closing"
	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCloseFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "close"}
	for _, f := range amountFlags {
		cmd.Flags().String(f.name, "", f.usage)
	}
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestEntryFromFlags(t *testing.T) {
	recorded := sales.PaymentEntry{
		LYD:    decimal.NewFromInt(500),
		USD:    decimal.NewFromInt(200),
		USDLYD: decimal.NewFromInt(1400),
	}

	t.Run("keeps recorded amounts", func(t *testing.T) {
		entry, err := entryFromFlags(newCloseFlags(t), recorded)
		require.NoError(t, err)
		assert.Equal(t, recorded, entry)
	})

	t.Run("overrides given amounts", func(t *testing.T) {
		entry, err := entryFromFlags(newCloseFlags(t, "--lyd", "250.5", "--eur", "10", "--eur-lyd", "80"), recorded)
		require.NoError(t, err)
		assert.True(t, entry.LYD.Equal(decimal.RequireFromString("250.5")))
		assert.True(t, entry.USD.Equal(recorded.USD))
		assert.True(t, entry.EUR.Equal(decimal.NewFromInt(10)))
		assert.True(t, entry.EURLYD.Equal(decimal.NewFromInt(80)))
	})

	t.Run("zero is an explicit amount", func(t *testing.T) {
		entry, err := entryFromFlags(newCloseFlags(t, "--usd", "0"), recorded)
		require.NoError(t, err)
		assert.True(t, entry.USD.IsZero())
	})

	t.Run("rejects malformed amounts", func(t *testing.T) {
		_, err := entryFromFlags(newCloseFlags(t, "--usd-lyd", "abc"), recorded)
		assert.ErrorContains(t, err, "--usd-lyd")
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := entryFromFlags(newCloseFlags(t, "--lyd", "-1"), recorded)
		assert.ErrorContains(t, err, "negative")
	})
}

func TestPrintClosure(t *testing.T) {
	res := &closing.SubmitResult{
		Invoice: sales.InvoiceRef{PointOfSale: "7", Seller: "3", Number: "7001"},
		Outcome: &sales.CloseOutcome{
			State:     sales.CloseAccepted,
			Payment:   sales.PaymentEntry{LYD: decimal.NewFromInt(300)},
			Remainder: sales.Remainder{LYD: decimal.NewFromInt(200)},
		},
		FailedLines: []string{"12"},
	}

	var buf bytes.Buffer
	printClosure(&buf, res)

	out := buf.String()
	assert.Contains(t, out, "Invoice 7001 closed (ps 7, usr 3)")
	assert.Contains(t, out, "paid LYD 300.00")
	assert.Contains(t, out, "left unpaid LYD 200.00")
	assert.Contains(t, out, "1 line update(s) failed")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, reportSummary{
		PointOfSale: "all",
		Summary: sales.Summary{
			InvoiceCount: 2,
			TotalGold:    decimal.NewFromInt(4500),
			TotalLYDDue:  decimal.NewFromInt(1201),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Invoices")
	assert.Contains(t, out, "4500.00")
	assert.Contains(t, out, "1201")
	assert.NotContains(t, out, "failed")
}
