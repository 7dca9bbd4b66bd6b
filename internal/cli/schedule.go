package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cyp0633/librecur/client"
	"github.com/spf13/cobra"
)

func newScheduleCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"sched"},
		Short:   "Manage schedules on a running server",
		Long: `Manage schedules stored on a librecur server.

The server and credentials come from the client section of the config file,
LIBRECUR_CLIENT_URL / LIBRECUR_CLIENT_USERNAME / LIBRECUR_CLIENT_PASSWORD, or
the flags below.

Commands:
  list, get, create, update, delete  schedule CRUD
  exdate                             exception dates
  preview, plan, export              what a schedule will do`,
	}

	cmd.PersistentFlags().String("url", "", "server URL including the API prefix")
	cmd.PersistentFlags().String("user", "", "user name")
	cmd.PersistentFlags().String("password", "", "password")
	a.bind("url", "client.url")
	a.bind("user", "client.username")
	a.bind("password", "client.password")

	cmd.AddCommand(
		newScheduleListCommand(a),
		newScheduleGetCommand(a),
		newScheduleCreateCommand(a),
		newScheduleUpdateCommand(a),
		newScheduleDeleteCommand(a),
		newExdateCommand(a),
		newSchedulePreviewCommand(a),
		newSchedulePlanCommand(a),
		newScheduleExportCommand(a),
	)
	return cmd
}

func (a *app) client() (client.Client, error) {
	c := a.cfg.Client
	if c.Username == "" {
		return nil, errors.New("no user given: set client.username or pass --user")
	}
	return client.Dial(c.URL, c.Username, c.Password, &client.Config{
		Logger:  a.logger,
		Timeout: c.Timeout,
	})
}

// remoteConfig reads a JSON configuration for the server; nil when none given
func (in *ruleInput) remoteConfig(cmd *cobra.Command) (json.RawMessage, error) {
	if strings.EqualFold(filepath.Ext(in.file), ".ics") {
		return nil, errors.New("schedule commands take JSON configurations")
	}
	data, err := in.raw(cmd)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	if len(data) > 0 && !json.Valid(data) {
		return nil, errors.New("configuration is not valid JSON")
	}
	return data, nil
}

func newScheduleListCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			schedules, err := c.ListSchedules(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, schedules)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tENABLED\tFREQUENCY\tLAST SCHEDULED")
			for _, s := range schedules {
				var cfg struct {
					Enabled   bool   `json:"enabled"`
					Frequency string `json:"frequency"`
				}
				_ = json.Unmarshal(s.Config, &cfg)
				last := "-"
				if s.LastScheduled != nil {
					last = s.LastScheduled.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", s.ID, s.Name, cfg.Enabled, cfg.Frequency, last)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newScheduleGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			sched, err := c.GetSchedule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, sched)
		},
	}
}

func newScheduleCreateCommand(a *app) *cobra.Command {
	var (
		in   ruleInput
		name string
	)
	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Create a schedule",
		Long: `Create a schedule. Without an id the server generates one.

Examples:
  librecur schedule create standup --name Standup --rule '{"enabled":true,"frequency":"weekly"}'
  librecur schedule create -f report.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := in.remoteConfig(cmd)
			if err != nil {
				return err
			}
			req := client.ScheduleRequest{Config: cfg}
			if len(args) == 1 {
				req.ID = args[0]
			}
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			sched, err := c.CreateSchedule(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, sched)
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newScheduleUpdateCommand(a *app) *cobra.Command {
	var (
		in           ruleInput
		name         string
		ifMatch      string
		replace      bool
		previousOpen bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a schedule",
		Long: `Merge the given configuration fields into a schedule. With --replace the
configuration is reset to the defaults before merging.

Examples:
  librecur schedule update standup --rule '{"hour":10}'
  librecur schedule update standup --previous-open=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := in.remoteConfig(cmd)
			if err != nil {
				return err
			}
			req := client.ScheduleRequest{Config: cfg}
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("previous-open") {
				req.PreviousOpen = &previousOpen
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			update := c.UpdateSchedule
			if replace {
				update = c.ReplaceSchedule
			}
			sched, err := update(cmd.Context(), args[0], req, ifMatch)
			if err != nil {
				return err
			}
			return printJSON(cmd, sched)
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&ifMatch, "if-match", "", "only update when the schedule still has this ETag")
	cmd.Flags().BoolVar(&replace, "replace", false, "reset the configuration to the defaults first")
	cmd.Flags().BoolVar(&previousOpen, "previous-open", false, "whether the newest instance is still open")
	return cmd
}

func newScheduleDeleteCommand(a *app) *cobra.Command {
	var ifMatch string
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.DeleteSchedule(cmd.Context(), args[0], ifMatch); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&ifMatch, "if-match", "", "only delete when the schedule still has this ETag")
	return cmd
}

func newExdateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exdate",
		Short: "Manage exception dates",
	}

	list := &cobra.Command{
		Use:   "list <id>",
		Short: "List exception dates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			dates, err := c.ListExceptions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, d := range dates {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <id> <date>",
		Short: "Skip the occurrence on a date (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			sched, err := c.AddException(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, sched)
		},
	}

	remove := &cobra.Command{
		Use:     "remove <id> <date>",
		Aliases: []string{"rm"},
		Short:   "Restore the occurrence on a date",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			sched, err := c.RemoveException(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, sched)
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}

func newSchedulePreviewCommand(a *app) *cobra.Command {
	var (
		at         string
		limit      int
		windowDays int
	)
	cmd := &cobra.Command{
		Use:   "preview <id>",
		Short: "Show the next occurrences of a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := client.PreviewQuery{Limit: limit, WindowDays: windowDays}
			if at != "" {
				t, err := parseInstant(at)
				if err != nil {
					return err
				}
				q.At = t
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			preview, err := c.Preview(cmd.Context(), args[0], q)
			if err != nil {
				return err
			}
			return printJSON(cmd, preview)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "reference instant (default: server time)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of occurrences")
	cmd.Flags().IntVar(&windowDays, "window-days", 0, "days after the reference to search")
	return cmd
}

func newSchedulePlanCommand(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "plan <id>",
		Short: "Show which instances the schedule wants created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var when time.Time
			if at != "" {
				t, err := parseInstant(at)
				if err != nil {
					return err
				}
				when = t
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			plan, err := c.Plan(cmd.Context(), args[0], when)
			if err != nil {
				return err
			}
			return printJSON(cmd, plan)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "instant to plan for (default: server time)")
	return cmd
}

func newScheduleExportCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Download a schedule as iCalendar or xCal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			data, err := c.Export(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "ics", "output format: ics or xml")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
