package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-elevatr/internal/log"
	"github.com/teslashibe/go-elevatr/pkg/gallery"
)

func newGalleryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Manage the local gallery of reference images",
	}
	cmd.AddCommand(newGallerySyncCommand(ctx))
	return cmd
}

func newGallerySyncCommand(ctx *commandContext) *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download reference images that are missing locally",
		Long: `Copy every image under the configured bucket prefix into the gallery
directory. Existing files are kept. Use --from to seed the gallery from a
local directory instead of the bucket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var store gallery.Store
			if from != "" {
				if _, err := os.Stat(from); err != nil {
					return fmt.Errorf("source directory: %w", err)
				}
				store = gallery.DirStore{Root: from}
			} else if store, err = buildGalleryStore(cmd.Context(), cfg); err != nil {
				return err
			}

			worker, err := gallery.NewWorker(gallery.Config{
				Store:  store,
				Prefix: cfg.Gallery.Prefix,
				Dir:    cfg.Paths.GalleryDir,
				Logger: log.Component("gallery"),
			})
			if err != nil {
				return err
			}
			n, err := worker.SyncOnce(cmd.Context())
			stats := worker.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d image(s) into %s (%d known, %d failed)\n",
				n, worker.Dir(), stats.Known, stats.Failures)
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Seed from a local directory instead of the bucket")
	return cmd
}
