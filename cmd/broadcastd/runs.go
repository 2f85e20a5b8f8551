package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tgbroadcast/internal/app"
	"tgbroadcast/internal/config"
	logx "tgbroadcast/pkg/logx"
)

func runsCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent broadcast runs from the audit store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigManager(configPath).Load()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cfg, logx.Nop())
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("storage is disabled; set storage.driver in the config")
			}
			defer store.Close()

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				for _, r := range runs {
					if err := enc.Encode(r); err != nil {
						return err
					}
				}
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tRUN\tORIGIN\tBOT\tSTATUS\tTOTAL\tOK\tFAILED\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), r.RunID, r.Origin, r.Bot, r.Status,
					r.Total, r.Successful, r.Failed, time.Duration(r.DurationMS)*time.Millisecond)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON lines instead of a table")
	return cmd
}
