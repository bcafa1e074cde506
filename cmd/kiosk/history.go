package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-elevatr/pkg/journal"
	"github.com/teslashibe/go-elevatr/pkg/recognition"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit int
		user  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recognitions from the local journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(cfg.Paths.JournalPath)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if user != "" {
				n, err := store.CountByUser(cmd.Context(), user)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d recognition(s)\n", user, n)
				return nil
			}

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No recognitions recorded")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CAPTURED\tUSER\tNAME\tFLOORS\tPRIORITY\tSESSION")
			for _, e := range entries {
				r := e.Recognition
				fmt.Fprintf(w, "%s\t%s\t%s\t%d -> %d\t%v\t%s\n",
					e.CapturedAt.Local().Format(recognition.LogTimeLayout),
					r.UserID,
					strings.TrimSpace(r.UserName),
					r.Reservation.EntryFloor,
					r.Reservation.DestinationFloor,
					r.PredictedPriority,
					shortID(e.SessionID),
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().StringVar(&user, "user", "", "Count recognitions of one user instead of listing")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
