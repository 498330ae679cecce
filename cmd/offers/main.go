// Command offers seeds and lists offers directly in the database, without
// going through the bot.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gatebot/internal/app"
	"gatebot/internal/catalog"
	"gatebot/internal/storage"
	logx "gatebot/pkg/logx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "offers",
		Short:        "Manage gatebot offers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./config.json", "path to the bot config (json or yaml)")

	open := func(ctx context.Context) (*catalog.Catalog, func(), error) {
		db, err := app.OpenStorage(ctx, cfgPath, logx.Nop())
		if err != nil {
			return nil, nil, err
		}
		return catalog.New(storage.NewOffers(db), logx.Nop()), func() { _ = db.Close() }, nil
	}
	root.AddCommand(newAddCmd(open), newListCmd(open))
	return root
}

type opener func(ctx context.Context) (*catalog.Catalog, func(), error)

func newAddCmd(open opener) *cobra.Command {
	var key, label, assetRef string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an offer or update its label and asset",
		Long: `Add an offer, or update an existing one.

The label is always replaced. The asset is replaced only when --asset-ref is
given; a new offer without one is stored as MISSING until an admin attaches
a document from the bot.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, done, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return runAdd(cmd.Context(), cmd.OutOrStdout(), cat, key, label, assetRef)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "offer key (a-z, 0-9, _; 2-50 chars)")
	cmd.Flags().StringVar(&label, "label", "", "button label shown to users")
	cmd.Flags().StringVar(&assetRef, "asset-ref", "", "Telegram file_id of the document")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func runAdd(ctx context.Context, w io.Writer, cat *catalog.Catalog, key, label, assetRef string) error {
	created, err := cat.Put(ctx, key, label, assetRef)
	if err != nil {
		return fmt.Errorf("add %q: %w", key, err)
	}
	verb := "updated"
	if created {
		verb = "added"
	}
	_, err = fmt.Fprintf(w, "Successfully %s offer %q.\n", verb, key)
	return err
}

func newListCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all offers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, done, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return runList(cmd.Context(), cmd.OutOrStdout(), cat)
		},
	}
}

func runList(ctx context.Context, w io.Writer, cat *catalog.Catalog) error {
	offers, err := cat.All(ctx)
	if err != nil {
		return err
	}
	if len(offers) == 0 {
		_, err := fmt.Fprintln(w, "No offers found in the database.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLABEL\tACTIVE\tFILE SET")
	for _, o := range offers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Key, o.Label, yesNo(o.Active), yesNo(o.HasAsset()))
	}
	return tw.Flush()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
