package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Sternrassler/whatdidyoudo/pkg/batch"
	"github.com/Sternrassler/whatdidyoudo/pkg/changeset"
	"github.com/Sternrassler/whatdidyoudo/pkg/config"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// localClientKey is the rate limit key of the CLI.
const localClientKey = "cli"

func newQueryCmd(configPath *string) *cobra.Command {
	var (
		start   string
		end     string
		showIDs bool
	)

	cmd := &cobra.Command{
		Use:   "query <user>[,<user>...]",
		Short: "Aggregate changes once and print them",
		Long: "Lists the changesets of the given users inside the window and prints, per user\n" +
			"and editor, the number of changesets and changed elements. Dates are\n" +
			"YYYY-MM-DD or YYYY-MM-DDThh:mm[:ss] in UTC; the window defaults to today.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg)

			window, err := changeset.NormalizeWindow(start, end, time.Now())
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			users := batch.ParseUsers(strings.Join(args, ","))
			result := a.runner.AggregateAll(cmd.Context(), localClientKey, users, window)

			return printResult(cmd.OutOrStdout(), users, result, showIDs)
		},
	}

	cmd.Flags().StringVarP(&start, "start", "s", "", "Window start (default: today)")
	cmd.Flags().StringVarP(&end, "end", "e", "", "Window end (default: end of the start day)")
	cmd.Flags().BoolVar(&showIDs, "ids", false, "Also list the changeset URLs")

	return cmd
}

var (
	warnLabel  = color.New(color.FgYellow, color.Bold)
	errorLabel = color.New(color.FgRed, color.Bold)
)

// count formats n with thousands separators.
func count(n int) string {
	return humanize.Comma(int64(n))
}

// printResult renders a batch result as a table followed by errors and
// warnings.
func printResult(out io.Writer, users []string, result *batch.Result, showIDs bool) error {
	fmt.Fprintf(out, "Window: %s\n\n", result.Window)

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"User", "Editor", "Changesets", "Changes"})

	var total changeset.Changes
	seen := make(map[string]bool, len(users))
	for _, user := range users {
		editors, ok := result.Changes[user]
		if !ok || seen[user] {
			continue
		}
		seen[user] = true

		for _, name := range editors.Names() {
			c := editors[name]
			editor := name
			if editor == "" {
				editor = "(unknown)"
			}
			tbl.AppendRow(table.Row{user, editor, count(c.Changesets), count(c.Changes)})
			total.Changesets += c.Changesets
			total.Changes += c.Changes
		}
	}
	tbl.AppendFooter(table.Row{"", "Total", count(total.Changesets), count(total.Changes)})

	fmt.Fprintln(out, tbl.Render())

	if showIDs && len(result.ChangesetIDs) > 0 {
		fmt.Fprintln(out)
		for _, id := range result.ChangesetIDs {
			fmt.Fprintln(out, changesetURLPrefix+id)
		}
	}

	for _, msg := range result.Warnings {
		fmt.Fprintf(out, "\n%s %s", warnLabel.Sprint("Warning:"), msg)
	}
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "\n%s %s", errorLabel.Sprint("Error:"), msg)
	}
	if len(result.Warnings)+len(result.Errors) > 0 {
		fmt.Fprintln(out)
	}

	return nil
}
