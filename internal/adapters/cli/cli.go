package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"erp-inventory/internal/app"
	"erp-inventory/internal/core"

	"github.com/shopspring/decimal"
)

// Usage lists the subcommands accepted by Run.
const Usage = `Usage: app [-org N] <command> [flags]
       app [-org N]            (interactive console)

Commands:
  receive       post a goods receipt
  issue         post a goods issue
  transfer      move stock between warehouses, locations or batches
  adjust        book a physical count
  stock         show stock levels
  item          show one stock key
  ledger        list ledger rows
  reorder       list products at or below reorder level
  reconcile     compare snapshot with ledger
  atp           available-to-promise for a product
  allocate      propose an allocation
  availability  check several products at once (P-100=5 P-200=2 ...)
  options       rank fulfillment options (P-100=5 P-200=2 ...)`

// Run executes a one-shot CLI command, writing results to out.
// args is os.Args[1:] after global flags; the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, orgID int64, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(Usage)
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "receive", "rcv":
		fs, ref := newRefFlags("receive")
		qty := fs.String("qty", "", "quantity received")
		cost := fs.String("cost", "", "unit cost")
		txnType := fs.String("type", "", "transaction type (default purchase)")
		refID := fs.String("ref", "", "source document reference")
		key := fs.String("key", "", "idempotency key")
		date := fs.String("date", "", "transaction date YYYY-MM-DD")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		q, err := app.ParseDecimal("qty", *qty)
		if err != nil {
			return err
		}
		c, err := app.ParseDecimal("cost", *cost)
		if err != nil {
			return err
		}
		res, err := svc.ReceiveStock(ctx, app.ReceiveStockRequest{
			OrganizationID: orgID, Ref: ref.stockRef(), Quantity: q, UnitCost: c,
			TxnType: *txnType, ReferenceID: *refID, IdempotencyKey: *key, TxnDate: *date,
		})
		if err != nil {
			return err
		}
		printPosting(out, res)

	case "issue", "iss":
		fs, ref := newRefFlags("issue")
		qty := fs.String("qty", "", "quantity issued")
		cost := fs.String("cost", "", "unit cost to record (default: average cost)")
		txnType := fs.String("type", "", "transaction type (default sale)")
		refID := fs.String("ref", "", "source document reference")
		key := fs.String("key", "", "idempotency key")
		date := fs.String("date", "", "transaction date YYYY-MM-DD")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		q, err := app.ParseDecimal("qty", *qty)
		if err != nil {
			return err
		}
		c, err := optionalDecimal("cost", *cost)
		if err != nil {
			return err
		}
		res, err := svc.IssueStock(ctx, app.IssueStockRequest{
			OrganizationID: orgID, Ref: ref.stockRef(), Quantity: q, UnitCost: c,
			TxnType: *txnType, ReferenceID: *refID, IdempotencyKey: *key, TxnDate: *date,
		})
		if err != nil {
			return err
		}
		printPosting(out, res)

	case "transfer", "xfer":
		fs := flag.NewFlagSet("transfer", flag.ContinueOnError)
		product := fs.String("product", "", "product code")
		from := fs.String("from", "", "source warehouse code")
		to := fs.String("to", "", "destination warehouse code")
		fromLoc := fs.String("from-location", "", "source location code")
		toLoc := fs.String("to-location", "", "destination location code")
		batch := fs.String("batch", "", "batch number (both legs)")
		qty := fs.String("qty", "", "quantity moved")
		refID := fs.String("ref", "", "correlation reference (default: generated)")
		key := fs.String("key", "", "idempotency key")
		date := fs.String("date", "", "transaction date YYYY-MM-DD")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		q, err := app.ParseDecimal("qty", *qty)
		if err != nil {
			return err
		}
		res, err := svc.TransferStock(ctx, app.TransferStockRequest{
			OrganizationID: orgID,
			From:           core.StockRef{ProductCode: *product, WarehouseCode: *from, LocationCode: *fromLoc, BatchNumber: *batch},
			To:             core.StockRef{ProductCode: *product, WarehouseCode: *to, LocationCode: *toLoc, BatchNumber: *batch},
			Quantity:       q, ReferenceID: *refID, IdempotencyKey: *key, TxnDate: *date,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Transfer %s\n", res.ReferenceID)
		printPosting(out, res.Out)
		printPosting(out, res.In)

	case "adjust", "adj":
		fs, ref := newRefFlags("adjust")
		counted := fs.String("counted", "", "physically counted quantity")
		cost := fs.String("cost", "", "unit cost of found stock (default: average cost)")
		refID := fs.String("ref", "", "count sheet reference")
		key := fs.String("key", "", "idempotency key")
		date := fs.String("date", "", "transaction date YYYY-MM-DD")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		q, err := app.ParseDecimal("counted", *counted)
		if err != nil {
			return err
		}
		c, err := optionalDecimal("cost", *cost)
		if err != nil {
			return err
		}
		res, err := svc.AdjustStock(ctx, app.AdjustStockRequest{
			OrganizationID: orgID, Ref: ref.stockRef(), CountedQuantity: q, UnitCost: c,
			ReferenceID: *refID, IdempotencyKey: *key, TxnDate: *date,
		})
		if err != nil {
			return err
		}
		if res.Entry == nil {
			fmt.Fprintln(out, "Count matches stock; nothing posted.")
			return nil
		}
		printPosting(out, res)

	case "stock", "levels":
		result, err := svc.GetStockLevels(ctx, orgID)
		if err != nil {
			return err
		}
		printStockLevels(out, result)

	case "item":
		fs, ref := newRefFlags("item")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		item, err := svc.GetInventoryItem(ctx, orgID, ref.stockRef())
		if err != nil {
			return err
		}
		return printJSON(out, item)

	case "ledger":
		fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
		product := fs.String("product", "", "product code")
		warehouse := fs.String("warehouse", "", "warehouse code")
		from := fs.String("from", "", "first date YYYY-MM-DD")
		to := fs.String("to", "", "last date YYYY-MM-DD")
		limit := fs.Int("limit", 0, "maximum rows")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		result, err := svc.ListLedgerEntries(ctx, app.LedgerQuery{
			OrganizationID: orgID, ProductCode: *product, WarehouseCode: *warehouse,
			FromDate: *from, ToDate: *to, Limit: *limit,
		})
		if err != nil {
			return err
		}
		printLedger(out, result.Entries)

	case "reorder":
		result, err := svc.ListReorderCandidates(ctx, orgID)
		if err != nil {
			return err
		}
		return printJSON(out, result)

	case "reconcile", "recon":
		result, err := svc.Reconcile(ctx, orgID)
		if err != nil {
			return err
		}
		if result.Balanced {
			fmt.Fprintln(out, "Snapshot matches ledger.")
			return nil
		}
		return printJSON(out, result)

	case "atp":
		fs := flag.NewFlagSet("atp", flag.ContinueOnError)
		product := fs.String("product", "", "product code")
		warehouse := fs.String("warehouse", "", "restrict to one warehouse")
		future := fs.Bool("future", false, "include the projected availability")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		result, err := svc.CalculateATP(ctx, app.ATPQuery{
			OrganizationID: orgID, ProductCode: *product, WarehouseCode: *warehouse, IncludeFuture: *future,
		})
		if err != nil {
			return err
		}
		return printJSON(out, result)

	case "allocate", "alloc":
		fs := flag.NewFlagSet("allocate", flag.ContinueOnError)
		product := fs.String("product", "", "product code")
		qty := fs.String("qty", "", "quantity to allocate")
		strategy := fs.String("strategy", "fifo", "nearest, cost, balance, fifo or fefo")
		priority := fs.String("priority", "", "standard, b2c, wholesale or critical")
		preferred := fs.String("prefer", "", "preferred warehouse code")
		lat := fs.Float64("lat", 0, "ship-to latitude")
		lng := fs.Float64("lng", 0, "ship-to longitude")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		q, err := app.ParseDecimal("qty", *qty)
		if err != nil {
			return err
		}
		req := app.AllocateRequest{
			OrganizationID: orgID, ProductCode: *product, Quantity: q,
			Strategy: *strategy, Priority: *priority, PreferredWarehouse: *preferred,
		}
		if flagSet(fs, "lat") || flagSet(fs, "lng") {
			req.ShipTo = &core.GeoPoint{Latitude: *lat, Longitude: *lng}
		}
		result, err := svc.AllocateInventory(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(out, result)

	case "availability", "avail":
		fs := flag.NewFlagSet("availability", flag.ContinueOnError)
		warehouse := fs.String("warehouse", "", "restrict to one warehouse")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		lines, err := parseItems(fs.Args())
		if err != nil {
			return err
		}
		items := map[string]decimal.Decimal{}
		for _, l := range lines {
			items[l.ProductCode] = items[l.ProductCode].Add(l.Quantity)
		}
		result, err := svc.CheckAvailability(ctx, app.AvailabilityRequest{
			OrganizationID: orgID, WarehouseCode: *warehouse, Items: items,
		})
		if err != nil {
			return err
		}
		return printJSON(out, result)

	case "options", "opts":
		fs := flag.NewFlagSet("options", flag.ContinueOnError)
		priority := fs.String("priority", "", "standard, b2c, wholesale or critical")
		preferred := fs.String("prefer", "", "preferred warehouse code")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		lines, err := parseItems(fs.Args())
		if err != nil {
			return err
		}
		result, err := svc.GetFulfillmentOptions(ctx, app.FulfillmentOptionsRequest{
			OrganizationID: orgID, Lines: lines, Priority: *priority, PreferredWarehouse: *preferred,
		})
		if err != nil {
			return err
		}
		return printJSON(out, result)

	default:
		return fmt.Errorf("unknown command: %s\n\n%s", cmd, Usage)
	}
	return nil
}

// refFlags binds the stock key flags shared by receive, issue, adjust and item.
type refFlags struct {
	product, warehouse, location, batch, serial *string
}

func newRefFlags(name string) (*flag.FlagSet, *refFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return fs, &refFlags{
		product:   fs.String("product", "", "product code"),
		warehouse: fs.String("warehouse", "", "warehouse code"),
		location:  fs.String("location", "", "location code"),
		batch:     fs.String("batch", "", "batch number"),
		serial:    fs.String("serial", "", "serial number"),
	}
}

func (f *refFlags) stockRef() core.StockRef {
	return core.StockRef{
		ProductCode:   *f.product,
		WarehouseCode: *f.warehouse,
		LocationCode:  *f.location,
		BatchNumber:   *f.batch,
		SerialNumber:  *f.serial,
	}
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func optionalDecimal(field, value string) (decimal.NullDecimal, error) {
	if value == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := app.ParseDecimal(field, value)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// parseItems reads CODE=QTY arguments in order.
func parseItems(args []string) ([]core.FulfillmentLine, error) {
	lines := make([]core.FulfillmentLine, 0, len(args))
	for _, arg := range args {
		code, raw, ok := strings.Cut(arg, "=")
		if !ok || code == "" {
			return nil, fmt.Errorf("%w: expected CODE=QTY, got %q", core.ErrInvalidInput, arg)
		}
		q, err := app.ParseDecimal(code, raw)
		if err != nil {
			return nil, err
		}
		lines = append(lines, core.FulfillmentLine{ProductCode: code, Quantity: q})
	}
	return lines, nil
}
