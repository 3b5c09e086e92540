package admin

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"price_tracker/internal/model"
)

const (
	statusActive = "active"
	statusPaused = "paused"

	timeFormat = "2006-01-02 15:04 UTC"
)

func statusLabel(active bool) string {
	if active {
		return statusActive
	}
	return statusPaused
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// FormatQueryList writes tracked queries as a table.
func FormatQueryList(w io.Writer, queries []model.TrackedQuery) error {
	if len(queries) == 0 {
		_, err := fmt.Fprintln(w, "No tracked queries yet. Use add <text> to track one.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tQUERY\tSTATUS")
	for _, q := range queries {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", q.ID, q.Text, statusLabel(q.Active))
	}
	return tw.Flush()
}

// FormatListings writes listings as a table.
func FormatListings(w io.Writer, listings []model.Listing) error {
	if len(listings) == 0 {
		_, err := fmt.Fprintln(w, "No listings yet.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSOURCE\tITEM\tQUERY\tNAME\tLAST CONFIRMED")
	for _, l := range listings {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			l.ID, l.Source, l.SourceItemID, l.QueryID, l.Name, formatOptionalTime(l.LastConfirmed))
	}
	return tw.Flush()
}

// FormatPriceHistory writes a listing's prices, oldest first.
func FormatPriceHistory(w io.Writer, history []model.PriceObservation) error {
	if len(history) == 0 {
		_, err := fmt.Fprintln(w, "No prices recorded.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tPRICE")
	for _, p := range history {
		fmt.Fprintf(tw, "%s\t%s\n", p.Timestamp.UTC().Format(timeFormat), strconv.FormatFloat(p.Price, 'f', 2, 64))
	}
	return tw.Flush()
}

// FormatStockHistory writes a listing's availability, oldest first.
func FormatStockHistory(w io.Writer, history []model.StockObservation) error {
	if len(history) == 0 {
		_, err := fmt.Fprintln(w, "No stock observations recorded.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tIN STOCK")
	for _, s := range history {
		avail := "no"
		if s.InStock {
			avail = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\n", s.Timestamp.UTC().Format(timeFormat), avail)
	}
	return tw.Flush()
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(timeFormat)
}
