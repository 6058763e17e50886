package main

import (
	"fmt"
	"io"

	"github.com/erp/salesrecon/internal/application/closing"
	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/infrastructure/cache"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Validate payment amounts and close an invoice",
	Long: `close opens the invoice, replaces the recorded amounts with the ones given
on the command line and submits the closure. Amounts that are not given keep the
value the backend has on file. The closure is refused with a non-zero exit when
an amount exceeds what was recorded or a foreign amount has no LYD equivalent.`,
	Example: `  # Close with the amounts on file
  salesctl close --ps 7 --usr 3 --num-fact 7001

  # Customer paid 200 USD at 1400 LYD and 500 LYD cash
  salesctl close --ps 7 --usr 3 --num-fact 7001 --lyd 500 --usd 200 --usd-lyd 1400`,
	RunE: runClose,
}

// amountFlags maps each amount flag to the payment field it sets
var amountFlags = []struct {
	name  string
	usage string
	field func(*sales.PaymentEntry) *decimal.Decimal
}{
	{"lyd", "Amount paid in LYD", func(p *sales.PaymentEntry) *decimal.Decimal { return &p.LYD }},
	{"usd", "Amount paid in USD", func(p *sales.PaymentEntry) *decimal.Decimal { return &p.USD }},
	{"usd-lyd", "LYD equivalent of the USD amount", func(p *sales.PaymentEntry) *decimal.Decimal { return &p.USDLYD }},
	{"eur", "Amount paid in EUR", func(p *sales.PaymentEntry) *decimal.Decimal { return &p.EUR }},
	{"eur-lyd", "LYD equivalent of the EUR amount", func(p *sales.PaymentEntry) *decimal.Decimal { return &p.EURLYD }},
}

func init() {
	rootCmd.AddCommand(closeCmd)

	closeCmd.Flags().String("ps", "", "Point of sale ID")
	closeCmd.Flags().String("usr", "", "Seller ID")
	closeCmd.Flags().String("num-fact", "", "Invoice number")
	for _, f := range amountFlags {
		closeCmd.Flags().String(f.name, "", f.usage)
	}
	closeCmd.Flags().Bool("no-cash-voucher", false, "Do not create a cash voucher for the closure")
	closeCmd.Flags().Bool("json", false, "Print the result as JSON")

	_ = closeCmd.MarkFlagRequired("ps")
	_ = closeCmd.MarkFlagRequired("usr")
	_ = closeCmd.MarkFlagRequired("num-fact")
}

// entryFromFlags starts from the recorded payment and overrides the amounts
// given on the command line
func entryFromFlags(cmd *cobra.Command, recorded sales.PaymentEntry) (sales.PaymentEntry, error) {
	entry := recorded
	for _, f := range amountFlags {
		if !cmd.Flags().Changed(f.name) {
			continue
		}
		raw, _ := cmd.Flags().GetString(f.name)
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return entry, fmt.Errorf("invalid --%s amount %q", f.name, raw)
		}
		if v.IsNegative() {
			return entry, fmt.Errorf("--%s cannot be negative", f.name)
		}
		*f.field(&entry) = v
	}
	return entry, nil
}

func runClose(cmd *cobra.Command, _ []string) error {
	ps, _ := cmd.Flags().GetString("ps")
	usr, _ := cmd.Flags().GetString("usr")
	numFact, _ := cmd.Flags().GetString("num-fact")
	noVoucher, _ := cmd.Flags().GetBool("no-cash-voucher")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx := cmd.Context()
	sessions := cache.NewInMemorySessionStore(cfg.Report.SessionTTL)
	defer sessions.Close()

	svc := closing.NewService(client, sessions, closing.WithLogger(log))

	view, err := svc.Open(ctx, sales.InvoiceRef{PointOfSale: ps, Seller: usr, Number: numFact})
	if err != nil {
		return err
	}
	entry, err := entryFromFlags(cmd, view.Recorded)
	if err != nil {
		_ = svc.Cancel(ctx, view.ID)
		return err
	}
	if _, err := svc.Enter(ctx, view.ID, entry); err != nil {
		_ = svc.Cancel(ctx, view.ID)
		return err
	}

	log.Debug("Submitting closure",
		zap.String("ps", ps),
		zap.String("num_fact", numFact),
		zap.Bool("cash_voucher", !noVoucher),
	)
	res, err := svc.Submit(ctx, view.ID, closing.SubmitOptions{MakeCashVoucher: !noVoucher})
	if err != nil {
		_ = svc.Cancel(ctx, view.ID)
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	printClosure(cmd.OutOrStdout(), res)
	return nil
}

func printClosure(w io.Writer, res *closing.SubmitResult) {
	fmt.Fprintf(w, "Invoice %s closed (ps %s, usr %s)\n",
		res.Invoice.Number, res.Invoice.PointOfSale, res.Invoice.Seller)
	if res.Outcome != nil {
		p := res.Outcome.Payment
		fmt.Fprintf(w, "  paid LYD %s, USD %s (%s LYD), EUR %s (%s LYD)\n",
			p.LYD.StringFixed(2), p.USD.StringFixed(2), p.USDLYD.StringFixed(2),
			p.EUR.StringFixed(2), p.EURLYD.StringFixed(2))
		if r := res.Outcome.Remainder; !r.IsZero() {
			fmt.Fprintf(w, "  left unpaid LYD %s, USD %s, EUR %s\n",
				r.LYD.StringFixed(2), r.USD.StringFixed(2), r.EUR.StringFixed(2))
		}
	}
	if len(res.FailedLines) > 0 {
		fmt.Fprintf(w, "  warning: %d line update(s) failed: %v\n", len(res.FailedLines), res.FailedLines)
	}
}
