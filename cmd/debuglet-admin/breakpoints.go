// ABOUTME: breakpoints subcommands: set, get, list and delete breakpoints on a debuggee
// ABOUTME: Locations are given as path:line; log breakpoints take a message format

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/debuglet/internal/breakpoint"
)

func newBreakpointsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "breakpoints",
		Aliases: []string{"bp"},
		Short:   "Manage breakpoints on a debuggee",
	}

	cmd.AddCommand(
		newBreakpointsSetCmd(a),
		newBreakpointsGetCmd(a),
		newBreakpointsListCmd(a),
		newBreakpointsDeleteCmd(a),
	)

	return cmd
}

// parseLocation parses "path:line".
func parseLocation(s string) (breakpoint.SourceLocation, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return breakpoint.SourceLocation{}, fmt.Errorf("location %q must be path:line", s)
	}
	line, err := strconv.Atoi(s[i+1:])
	if err != nil || line <= 0 {
		return breakpoint.SourceLocation{}, fmt.Errorf("location %q has invalid line", s)
	}
	return breakpoint.SourceLocation{Path: s[:i], Line: line}, nil
}

func newBreakpointsSetCmd(a *app) *cobra.Command {
	var (
		condition   string
		expressions []string
		logMessage  string
	)

	cmd := &cobra.Command{
		Use:   "set <debuggee-id> <path:line>",
		Short: "Set a capture breakpoint, or a logpoint with --log",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[1])
			if err != nil {
				return err
			}

			bp := &breakpoint.Breakpoint{
				Action:      breakpoint.ActionCapture,
				Location:    loc,
				Condition:   condition,
				Expressions: expressions,
			}
			if logMessage != "" {
				bp.Action = breakpoint.ActionLog
				bp.LogMessage = logMessage
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			set, err := c.SetBreakpoint(cmd.Context(), args[0], bp)
			if err != nil {
				return fmt.Errorf("setting breakpoint: %w", err)
			}

			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), set)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Breakpoint %s set at %s\n", set.ID, set.Location)
			return nil
		},
	}

	cmd.Flags().StringVar(&condition, "condition", "", "only trigger when this condition holds")
	cmd.Flags().StringArrayVar(&expressions, "expr", nil, "expression to evaluate (repeatable)")
	cmd.Flags().StringVar(&logMessage, "log", "", "make a logpoint with this message format")
	return cmd
}

func newBreakpointsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <debuggee-id> <breakpoint-id>",
		Short: "Show a breakpoint and its captured result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			bp, err := c.GetBreakpoint(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("getting breakpoint: %w", err)
			}

			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), bp)
			}
			printBreakpoint(cmd.OutOrStdout(), bp)
			return nil
		},
	}
}

func printBreakpoint(w io.Writer, bp *breakpoint.Breakpoint) {
	_, _ = fmt.Fprintf(w, "ID:        %s\n", bp.ID)
	_, _ = fmt.Fprintf(w, "Location:  %s\n", bp.Location)
	_, _ = fmt.Fprintf(w, "Action:    %s\n", bp.Action)
	if bp.Condition != "" {
		_, _ = fmt.Fprintf(w, "Condition: %s\n", bp.Condition)
	}
	if bp.UserEmail != "" {
		_, _ = fmt.Fprintf(w, "Owner:     %s\n", bp.UserEmail)
	}
	_, _ = fmt.Fprintf(w, "Created:   %s\n", bp.CreateTime.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Final:     %t\n", bp.IsFinalState)
	if bp.Status != nil {
		_, _ = fmt.Fprintf(w, "Status:    %s\n", bp.Status.Message)
	}
	for _, v := range bp.EvaluatedExpressions {
		_, _ = fmt.Fprintf(w, "  %s = %s\n", v.Name, v.Value)
	}
	for i, f := range bp.StackFrames {
		_, _ = fmt.Fprintf(w, "  #%d %s at %s\n", i, f.Function, f.Location)
	}
}

func newBreakpointsListCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list <debuggee-id>",
		Short: "List a debuggee's breakpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			bps, err := c.ListBreakpoints(cmd.Context(), args[0], all)
			if err != nil {
				return fmt.Errorf("listing breakpoints: %w", err)
			}

			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), bps)
			}
			if len(bps) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no breakpoints")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tLOCATION\tACTION\tFINAL")
			for _, bp := range bps {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", bp.ID, bp.Location, bp.Action, bp.IsFinalState)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include completed breakpoints")
	return cmd
}

func newBreakpointsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <debuggee-id> <breakpoint-id>",
		Short: "Delete a breakpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.DeleteBreakpoint(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("deleting breakpoint: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Breakpoint %s deleted\n", args[1])
			return nil
		},
	}
}
