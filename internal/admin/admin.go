// Package admin implements the trackctl commands: managing tracked queries
// and reading back listings with their price and stock histories.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"price_tracker/internal/storage"
)

// ErrUsage is returned for an unknown command or malformed arguments.
var ErrUsage = errors.New("usage")

// Usage lists the supported commands.
const Usage = `Commands:
  add <text>          track a new search query
  list                show all tracked queries
  enable <id>         resume tracking a query
  disable <id>        stop tracking a query
  listings            show all listings
  prices <listing>    show the price history of a listing
  stock <listing>     show the stock history of a listing`

// Commands runs admin commands against a store and writes results to out.
type Commands struct {
	store storage.Storage
	out   io.Writer
}

// New creates Commands.
func New(store storage.Storage, out io.Writer) *Commands {
	return &Commands{store: store, out: out}
}

// Run dispatches one command.
func (c *Commands) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", ErrUsage)
	}
	rest := strings.Join(args[1:], " ")

	switch args[0] {
	case "add":
		return c.add(ctx, rest)
	case "list":
		return c.list(ctx)
	case "enable":
		return c.setActive(ctx, rest, true)
	case "disable":
		return c.setActive(ctx, rest, false)
	case "listings":
		return c.listings(ctx)
	case "prices":
		return c.prices(ctx, rest)
	case "stock":
		return c.stock(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func (c *Commands) add(ctx context.Context, args string) error {
	text, err := ParseQueryText(args)
	if err != nil {
		return err
	}
	id, err := c.store.AddTrackedQuery(ctx, text)
	if err != nil {
		return fmt.Errorf("add query: %w", err)
	}
	_, err = fmt.Fprintf(c.out, "Tracking #%d %q\n", id, text)
	return err
}

func (c *Commands) list(ctx context.Context) error {
	queries, err := c.store.ListTrackedQueries(ctx)
	if err != nil {
		return fmt.Errorf("list queries: %w", err)
	}
	return FormatQueryList(c.out, queries)
}

func (c *Commands) setActive(ctx context.Context, args string, active bool) error {
	id, err := ParseIDArg(args)
	if err != nil {
		return err
	}
	if err := c.store.SetTrackedQueryActive(ctx, id, active); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("query #%d not found", id)
		}
		return fmt.Errorf("update query: %w", err)
	}
	_, err = fmt.Fprintf(c.out, "Query #%d is now %s\n", id, statusLabel(active))
	return err
}

func (c *Commands) listings(ctx context.Context) error {
	listings, err := c.store.ListListings(ctx)
	if err != nil {
		return fmt.Errorf("list listings: %w", err)
	}
	return FormatListings(c.out, listings)
}

func (c *Commands) prices(ctx context.Context, args string) error {
	id, err := ParseIDArg(args)
	if err != nil {
		return err
	}
	if _, err := c.store.GetListing(ctx, id); err != nil {
		return c.listingErr(id, err)
	}
	history, err := c.store.ListPriceHistory(ctx, id)
	if err != nil {
		return fmt.Errorf("price history: %w", err)
	}
	return FormatPriceHistory(c.out, history)
}

func (c *Commands) stock(ctx context.Context, args string) error {
	id, err := ParseIDArg(args)
	if err != nil {
		return err
	}
	if _, err := c.store.GetListing(ctx, id); err != nil {
		return c.listingErr(id, err)
	}
	history, err := c.store.ListStockHistory(ctx, id)
	if err != nil {
		return fmt.Errorf("stock history: %w", err)
	}
	return FormatStockHistory(c.out, history)
}

func (c *Commands) listingErr(id int64, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("listing #%d not found", id)
	}
	return fmt.Errorf("get listing: %w", err)
}
