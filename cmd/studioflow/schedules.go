package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtzanidakis/studioflow/internal/config"
	"github.com/mtzanidakis/studioflow/internal/schedule"
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules [spec...]",
	Short: "List configured schedules, or check schedule expressions",
	Long: `Without arguments, lists the schedules from the config file with their
next run time.

With arguments, each one is parsed as a schedule (a cron expression, a
duration such as 15m, an RFC 3339 time or a JSON spec) and its next run
is printed, which helps when writing the config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

		if len(args) > 0 {
			fmt.Fprintln(tw, "INPUT\tSCHEDULE\tNEXT RUN")
			for _, raw := range args {
				spec, err := schedule.Parse(raw)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", raw, schedule.Describe(spec), formatNext(schedule.NextRun(spec, now)))
			}
			return tw.Flush()
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if len(cfg.Schedules) == 0 {
			fmt.Println("no schedules configured")
			return nil
		}
		fmt.Fprintln(tw, "NAME\tAGENT\tSCHEDULE\tNEXT RUN")
		for _, s := range cfg.Schedules {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Agent, schedule.Describe(s.Schedule), formatNext(schedule.NextRun(s.Schedule, now)))
		}
		return tw.Flush()
	},
}

func formatNext(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
