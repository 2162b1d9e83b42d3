// ABOUTME: Root cobra command and connection flags for the admin CLI
// ABOUTME: Connection settings default from DEBUGLET_* environment variables

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/2389/debuglet/internal/config"
	"github.com/2389/debuglet/internal/controller"
)

// Version is set by goreleaser at build time.
var version = "dev"

// dialFunc opens a controller client.
type dialFunc func(cfg controller.DialConfig) (*controller.Client, error)

func dialController(cfg controller.DialConfig) (*controller.Client, error) {
	return controller.Dial(cfg)
}

type app struct {
	dial    dialFunc
	conn    controller.DialConfig
	jsonOut bool
}

// client opens a client using the resolved connection flags.
func (a *app) client() (*controller.Client, error) {
	c, err := a.dial(a.conn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", a.conn.Addr, err)
	}
	return c, nil
}

// printJSON writes v as indented JSON.
func (a *app) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func newRootCmd(dial dialFunc) *cobra.Command {
	a := &app{dial: dial}

	rootCmd := &cobra.Command{
		Use:           "debuglet-admin",
		Short:         "Manage debuggees and breakpoints on a debuglet controller",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.conn.Addr, "addr", envOr("DEBUGLET_CONTROLLER", config.DefaultControllerAddr), "controller gRPC address")
	flags.StringVar(&a.conn.Token, "token", os.Getenv("DEBUGLET_TOKEN"), "admin bearer token")
	flags.BoolVar(&a.conn.Insecure, "insecure", envBool("DEBUGLET_INSECURE", true), "connect without TLS")
	flags.StringVar(&a.conn.CACertFile, "ca-cert", os.Getenv("DEBUGLET_CA_CERT"), "CA certificate for TLS")
	flags.StringVar(&a.conn.ServerName, "server-name", "", "TLS server name override")
	flags.BoolVar(&a.jsonOut, "json", false, "print JSON instead of tables")

	rootCmd.AddCommand(
		newDebuggeesCmd(a),
		newBreakpointsCmd(a),
	)

	return rootCmd
}
