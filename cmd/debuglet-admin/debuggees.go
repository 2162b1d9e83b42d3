// ABOUTME: debuggees subcommands: list registered processes and toggle their disabled flag
// ABOUTME: A disabled debuggee's agents fail registration until re-enabled

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDebuggeesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debuggees",
		Short: "Manage registered debuggees",
	}

	cmd.AddCommand(
		newDebuggeesListCmd(a),
		newDebuggeesDisableCmd(a, "disable", true),
		newDebuggeesDisableCmd(a, "enable", false),
	)

	return cmd
}

func newDebuggeesListCmd(a *app) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered debuggees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			debuggees, err := c.ListDebuggees(cmd.Context(), project)
			if err != nil {
				return fmt.Errorf("listing debuggees: %w", err)
			}

			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), debuggees)
			}
			if len(debuggees) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no debuggees")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tPROJECT\tDESCRIPTION\tAGENT\tDISABLED")
			for _, d := range debuggees {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", d.ID, d.Project, d.Description, d.AgentVersion, d.IsDisabled)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "only list debuggees of this project")
	return cmd
}

func newDebuggeesDisableCmd(a *app, use string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <debuggee-id>",
		Short: fmt.Sprintf("Mark a debuggee %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.SetDebuggeeDisabled(cmd.Context(), args[0], disabled); err != nil {
				return fmt.Errorf("updating debuggee: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Debuggee %s %sd\n", args[0], use)
			return nil
		},
	}
}
