package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"erp-inventory/internal/app"
	"erp-inventory/internal/core"

	"github.com/shopspring/decimal"
)

type countLine struct {
	ref     core.StockRef
	counted decimal.Decimal
}

// handleCount runs a physical count session for one warehouse and posts one
// adjustment per counted line once the user confirms.
func handleCount(ctx context.Context, reader *bufio.Reader, out io.Writer, svc app.ApplicationService, orgID int64, warehouse string) {
	fmt.Fprintf(out, "Physical count for warehouse: %s\n", warehouse)
	fmt.Fprintln(out, "Enter counted lines. Type 'done' when finished, 'cancel' to abort.")
	fmt.Fprintln(out, "Format per line: <product-code> <counted> [location] [batch]")
	fmt.Fprintln(out, "  Example: P-100 42")
	fmt.Fprintln(out, "  Example: P-200 18 A-01 LOT-2601")

	var lines []countLine
	lineNum := 1
	for {
		fmt.Fprintf(out, "  Line %d: ", lineNum)
		raw, err := reader.ReadString('\n')
		raw = strings.TrimSpace(raw)
		if strings.EqualFold(raw, "cancel") || (err != nil && raw == "") {
			fmt.Fprintln(out, "Count cancelled.")
			return
		}
		if strings.EqualFold(raw, "done") {
			break
		}
		if raw == "" {
			continue
		}

		parts := strings.Fields(raw)
		if len(parts) < 2 {
			fmt.Fprintln(out, "  Invalid format. Use: <product-code> <counted> [location] [batch]")
			continue
		}
		counted, perr := decimal.NewFromString(parts[1])
		if perr != nil || counted.IsNegative() {
			fmt.Fprintln(out, "  Invalid counted quantity.")
			continue
		}

		ref := core.StockRef{ProductCode: parts[0], WarehouseCode: warehouse}
		if len(parts) >= 3 && parts[2] != "-" {
			ref.LocationCode = parts[2]
		}
		if len(parts) >= 4 {
			ref.BatchNumber = parts[3]
		}
		lines = append(lines, countLine{ref: ref, counted: counted})
		lineNum++
	}

	if len(lines) == 0 {
		fmt.Fprintln(out, "No lines entered. Count cancelled.")
		return
	}

	fmt.Fprintf(out, "\n%d line(s) counted in %s. Post adjustments? (y/n): ", len(lines), warehouse)
	choice, _ := reader.ReadString('\n')
	choice = strings.TrimSpace(strings.ToLower(choice))
	if choice != "y" && choice != "yes" {
		fmt.Fprintln(out, "Count discarded.")
		return
	}

	session := "COUNT-" + warehouse + "-" + time.Now().UTC().Format("20060102T150405")
	for i, l := range lines {
		res, err := svc.AdjustStock(ctx, app.AdjustStockRequest{
			OrganizationID:  orgID,
			Ref:             l.ref,
			CountedQuantity: l.counted,
			ReferenceID:     session,
			IdempotencyKey:  fmt.Sprintf("%s:%d", session, i+1),
		})
		if err != nil {
			fmt.Fprintf(out, "  %-30s FAILED: %v\n", l.ref.String(), err)
			continue
		}
		if res.Entry == nil {
			fmt.Fprintf(out, "  %-30s no difference\n", l.ref.String())
			continue
		}
		fmt.Fprintf(out, "  %-30s adjusted +%s -%s, on hand %s\n",
			l.ref.String(), res.Entry.QtyIn, res.Entry.QtyOut, res.Item.QuantityOnHand)
	}
}
