package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/kiwari-pos/terminal/internal/checkout"
	"github.com/spf13/cobra"
)

type totalsOptions struct {
	discount string
	tendered string
}

// NewTotalsCommand creates the totals command.
func NewTotalsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &totalsOptions{}

	cmd := &cobra.Command{
		Use:   "totals [cart.json]",
		Short: "Compute checkout totals for a cart snapshot",
		Long: `Reads a cart snapshot as JSON (from the file argument or stdin) and prints
the checkout totals with the given discount percent and tendered amount.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTotals(rootOpts, opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.discount, "discount", "", "discount percent, a whole number from 0 to 100")
	cmd.Flags().StringVar(&opts.tendered, "tendered", "", "amount tendered by the customer")

	return cmd
}

func runTotals(rootOpts *RootOptions, opts *totalsOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	discount, err := checkout.ParseDiscount(opts.discount)
	if err != nil {
		return WrapExitError(ExitCommandError, "parse --discount", err)
	}
	tendered, err := checkout.ParseAmount(opts.tendered)
	if err != nil {
		return WrapExitError(ExitCommandError, "parse --tendered", err)
	}

	in := cmd.InOrStdin()
	source := "stdin"
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "open cart", err)
		}
		defer f.Close()
		in, source = f, args[0]
	}

	var snap cart.Snapshot
	if err := json.NewDecoder(in).Decode(&snap); err != nil {
		return WrapExitError(ExitCommandError, "decode cart from "+source, err)
	}
	formatter.VerboseLog("Read %d line(s) from %s", len(snap.Lines), source)

	display := checkout.Calculate(&snap, discount, tendered).Rounded().Display()
	return formatter.Print(display, func(w io.Writer) error {
		return writeTotals(w, display)
	})
}

func writeTotals(w io.Writer, d checkout.Display) error {
	rows := []struct{ label, value string }{
		{"Subtotal", d.SubTotal},
		{"Tax", d.Tax},
		{"Service charge", d.ServiceCharge},
		{fmt.Sprintf("Discount (%s%%)", d.DiscountPercent), d.DiscountAmount},
		{"Total", d.Total},
		{"Tendered", d.Tendered},
		{"Balance", d.Balance},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-15s%10s\n", row.label, row.value); err != nil {
			return err
		}
	}
	return nil
}
