package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "chatter: %v\n", err)
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	workingDir string
	dryRun     bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:     "chatter",
		Short:   "Sandboxed file tools for chat agents",
		Version: version,
		Long: `chatter runs a small set of file tools (read, write, update, search,
list, inspect) behind a safety gate that confines them to a working
directory, rejects sensitive files and dangerous content, and can back up
or dry-run every modification.

Tools are reachable from an interactive /agent session, one-shot exec
calls, or an MCP server on stdio or HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfigPath(), "config file path (env CHATTER_CONFIG)")
	root.PersistentFlags().StringVarP(&flags.workingDir, "workdir", "C", "", "override agent.working_directory")
	root.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "preview modifications without writing")

	root.AddCommand(
		newRunCmd(flags),
		newExecCmd(flags),
		newDetectCmd(flags),
		newToolsCmd(flags),
		newCheckPathCmd(flags),
		newMCPCmd(flags),
		newDoctorCmd(flags),
	)
	return root
}

// overrides converts the flags that were explicitly set.
func (f *rootFlags) overrides(cmd *cobra.Command, forceEnable bool) overrides {
	return overrides{
		workingDir:  f.workingDir,
		dryRun:      f.dryRun,
		dryRunSet:   cmd.Flags().Changed("dry-run"),
		forceEnable: forceEnable,
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("CHATTER_CONFIG"); p != "" {
		return p
	}
	return "chatter.yaml"
}
