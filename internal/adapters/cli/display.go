package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"erp-inventory/internal/app"
	"erp-inventory/internal/core"
)

func printPosting(out io.Writer, res *core.PostingResult) {
	if res == nil || res.Item == nil {
		return
	}
	status := "POSTED"
	if res.Replayed {
		status = "REPLAYED"
	}
	if res.Entry != nil {
		e := res.Entry
		fmt.Fprintf(out, "%-9s #%d %-14s %s  in %s  out %s  @ %s\n",
			status, e.ID, e.TxnType, e.Ref.String(), e.QtyIn, e.QtyOut, e.UnitCost.StringFixed(4))
	}
	fmt.Fprintf(out, "          on hand %s @ %s (value %s)\n",
		res.Item.QuantityOnHand, res.Item.UnitCost.StringFixed(4), res.Item.Value().StringFixed(2))
}

func printStockLevels(out io.Writer, result *app.StockResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "  STOCK LEVELS - Organization %d\n", result.OrganizationID)
	fmt.Fprintln(out, strings.Repeat("=", 80))
	if len(result.Levels) == 0 {
		fmt.Fprintln(out, "  No stock recorded.")
		fmt.Fprintln(out, strings.Repeat("=", 80))
		return
	}
	fmt.Fprintf(out, "  %-10s %-22s %-8s %12s %12s %12s\n", "PRODUCT", "NAME", "WH", "ON HAND", "UNIT COST", "VALUE")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, l := range result.Levels {
		fmt.Fprintf(out, "  %-10s %-22s %-8s %12s %12s %12s\n",
			l.ProductCode, truncate(l.ProductName, 22), l.WarehouseCode,
			l.OnHand.StringFixed(4), l.UnitCost.StringFixed(4), l.Value.StringFixed(2))
	}
	fmt.Fprintln(out, strings.Repeat("=", 80))
}

func printLedger(out io.Writer, entries []core.LedgerEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No ledger rows.")
		return
	}
	fmt.Fprintf(out, "%-6s %-10s %-14s %-28s %10s %10s %12s  %s\n",
		"ID", "DATE", "TYPE", "KEY", "IN", "OUT", "UNIT COST", "REFERENCE")
	for _, e := range entries {
		fmt.Fprintf(out, "%-6d %-10s %-14s %-28s %10s %10s %12s  %s\n",
			e.ID, e.TxnDate.Format("2006-01-02"), e.TxnType, truncate(e.Ref.String(), 28),
			e.QtyIn, e.QtyOut, e.UnitCost.StringFixed(4), e.ReferenceID)
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
