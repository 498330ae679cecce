// Command export writes the event log to a CSV file, oldest first.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"gatebot/internal/app"
	"gatebot/internal/storage"
	logx "gatebot/pkg/logx"
)

var header = []string{"id", "identity_id", "kind", "offer_key", "target", "ts"}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "export <output.csv>",
		Short:        "Export the event log to CSV",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.OpenStorage(cmd.Context(), cfgPath, logx.Nop())
			if err != nil {
				return err
			}
			defer db.Close()
			return exportFile(cmd.Context(), cmd.OutOrStdout(), storage.NewEvents(db), args[0])
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "./config.json", "path to the bot config (json or yaml)")
	return cmd
}

func exportFile(ctx context.Context, out io.Writer, events *storage.Events, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	n, err := writeCSV(ctx, f, events)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if n == 0 {
		_, err = fmt.Fprintln(out, "No events to export.")
		return err
	}
	_, err = fmt.Fprintf(out, "Successfully exported %d events to %s\n", n, path)
	return err
}

// writeCSV writes the header and every event ordered by timestamp. ts is
// RFC 3339 in UTC with milliseconds; target is empty unless set.
func writeCSV(ctx context.Context, w io.Writer, events *storage.Events) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, err
	}
	n := 0
	err := events.Each(ctx, func(e storage.Event) error {
		n++
		target := ""
		if e.Target != 0 {
			target = strconv.FormatInt(e.Target, 10)
		}
		return cw.Write([]string{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatInt(e.IdentityID, 10),
			string(e.Kind),
			e.OfferKey,
			target,
			e.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	})
	if err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}
