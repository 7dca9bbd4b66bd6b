package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyp0633/librecur/internal/xcal"
	"github.com/cyp0633/librecur/recurrence"
	"github.com/spf13/cobra"
)

// ruleInput is where a command reads a (partial) recurrence configuration from
type ruleInput struct {
	rule string
	file string
}

func (in *ruleInput) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.rule, "rule", "", "recurrence configuration as JSON")
	cmd.Flags().StringVarP(&in.file, "file", "f", "", "read the configuration from a JSON or .ics file, - for stdin")
	cmd.MarkFlagsMutuallyExclusive("rule", "file")
}

// raw returns the JSON document, or nil when none was given
func (in *ruleInput) raw(cmd *cobra.Command) ([]byte, error) {
	switch {
	case in.rule != "":
		return []byte(in.rule), nil
	case in.file == "-":
		return io.ReadAll(cmd.InOrStdin())
	case in.file != "":
		return os.ReadFile(in.file)
	}
	return nil, nil
}

// config merges the given document into the defaults. An .ics file is
// imported from its first VTODO instead.
func (in *ruleInput) config(cmd *cobra.Command) (recurrence.Config, error) {
	if strings.EqualFold(filepath.Ext(in.file), ".ics") {
		f, err := os.Open(in.file)
		if err != nil {
			return recurrence.Config{}, fmt.Errorf("reading configuration: %w", err)
		}
		defer f.Close()
		cfg, _, err := recurrence.DecodeCalendar(f)
		if err != nil {
			return recurrence.Config{}, fmt.Errorf("importing %s: %w", in.file, err)
		}
		return cfg, cfg.Validate()
	}

	data, err := in.raw(cmd)
	if err != nil {
		return recurrence.Config{}, fmt.Errorf("reading configuration: %w", err)
	}
	var p recurrence.Patch
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return recurrence.Config{}, fmt.Errorf("parsing configuration: %w", err)
		}
	}
	cfg := recurrence.New(recurrence.Sanitize(p))
	return cfg, cfg.Validate()
}

// parseInstant accepts RFC 3339 instants and ISO dates
func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := recurrence.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func newPreviewCommand(a *app) *cobra.Command {
	var (
		in         ruleInput
		at         string
		limit      int
		windowDays int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "List the next occurrences of a recurrence configuration",
		Long: `Preview a recurrence configuration locally. Fields left out keep their
default values (weekly at 09:00 America/Sao_Paulo, disabled).

Examples:
  librecur preview --rule '{"enabled":true,"frequency":"daily","timezone":"UTC"}'
  librecur preview -f standup.json --at 2025-01-01 --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := in.config(cmd)
			if err != nil {
				return err
			}

			now := time.Now()
			ref := now.Truncate(time.Minute)
			if ref.Before(now) {
				ref = ref.Add(time.Minute)
			}
			if at != "" {
				if ref, err = parseInstant(at); err != nil {
					return err
				}
			}

			engine := recurrence.NewEngineWithConfig(a.cfg.Engine.Recurrence(), recurrence.WithLogger(a.logger))
			defer engine.Close()

			occurrences := engine.PreviewWith(cfg, ref, recurrence.PreviewOptions{WindowDays: windowDays, Limit: limit})
			var rule string
			if r := engine.Compile(cfg); r != nil {
				rule = r.String()
			}

			if asJSON {
				return printJSON(cmd, map[string]any{
					"rule":        rule,
					"reference":   ref,
					"occurrences": occurrences,
				})
			}

			w := cmd.OutOrStdout()
			if rule == "" {
				fmt.Fprintln(w, "no rule: recurrence is disabled")
				return nil
			}
			fmt.Fprintf(w, "rule: %s\n", rule)
			loc, _ := recurrence.LoadLocation(cfg.Timezone)
			for _, t := range occurrences {
				fmt.Fprintln(w, t.In(loc).Format(time.RFC3339))
			}
			return nil
		},
	}

	in.register(cmd)
	cmd.Flags().StringVar(&at, "at", "", "reference instant (default: now, rounded up to the minute)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of occurrences (default from engine.preview_limit)")
	cmd.Flags().IntVar(&windowDays, "window-days", 0, "days after the reference to search (default from engine.preview_window_days)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var (
		in      ruleInput
		format  string
		uid     string
		summary string
		start   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render a recurrence configuration as iCalendar or xCal",
		Long: `Export a recurrence configuration as a VTODO carrying its RRULE,
EXDATEs and scheduling settings.

Examples:
  librecur export --rule '{"enabled":true,"frequency":"monthly"}' > task.ics
  librecur export -f standup.json --format xml --uid standup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := in.config(cmd)
			if err != nil {
				return err
			}

			opts := recurrence.ExportOptions{UID: uid, Summary: summary}
			if start != "" {
				if opts.Start, err = parseInstant(start); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			switch format {
			case "ics":
				data, err := recurrence.EncodeCalendar(cfg, opts)
				if err != nil {
					return err
				}
				_, err = w.Write(data)
				return err
			case "xml":
				cal, err := recurrence.NewCalendar(cfg, opts)
				if err != nil {
					return err
				}
				doc, err := xcal.EncodeToString(cal)
				if err != nil {
					return err
				}
				_, err = io.WriteString(w, doc)
				return err
			default:
				return fmt.Errorf("unsupported format %q: want ics or xml", format)
			}
		},
	}

	in.register(cmd)
	cmd.Flags().StringVar(&format, "format", "ics", "output format: ics or xml")
	cmd.Flags().StringVar(&uid, "uid", "", "UID of the exported component (default: random)")
	cmd.Flags().StringVar(&summary, "summary", "", "SUMMARY of the exported component")
	cmd.Flags().StringVar(&start, "start", "", "DTSTART search origin (default: now)")
	return cmd
}
