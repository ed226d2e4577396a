package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomatyss/chatter/internal/adapter/cli"
	"github.com/tomatyss/chatter/internal/adapter/mcpserver"
	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/infra/middleware"
	"github.com/tomatyss/chatter/internal/usecase"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var enable bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive /agent session",
		Long: `Start a line-oriented session. Lines starting with /agent are commands
(try /agent help); other lines are scanned for tool calls, which run when
agent mode is on. /quit or end of input exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags.configPath, flags.overrides(cmd, enable))
			if err != nil {
				return err
			}
			defer a.close()

			session := cli.NewSession(a.agent, cmd.OutOrStdout(), cli.SessionOptions{
				RecentMessages: a.cfg.Completion.RecentMessages,
				Logger:         a.log,
			})
			state := "off"
			if a.agent.IsEnabled() {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "chatter %s - agent mode %s, working directory %s\n",
				version, state, a.agent.Config().WorkingDirectory)
			fmt.Fprintln(cmd.OutOrStdout(), "Type /agent help for commands, /quit to exit.")
			return session.Run(cmd.Context(), cmd.InOrStdin())
		},
	}
	cmd.Flags().BoolVar(&enable, "enable", false, "start with agent mode on")
	return cmd
}

// execCall is the JSON shape accepted by exec.
type execCall struct {
	Tool       string          `json:"tool"`
	Parameters json.RawMessage `json:"parameters"`
	Thought    string          `json:"thought,omitempty"`
}

func newExecCmd(flags *rootFlags) *cobra.Command {
	var toolName, args string
	var pretty bool
	cmd := &cobra.Command{
		Use:   "exec [JSON]",
		Short: "Execute one tool call and print its result",
		Example: `  chatter exec '{"tool": "read_file", "parameters": {"path": "notes.md"}}'
  chatter exec --tool search_files --args '{"pattern": "TODO"}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			call, err := parseExecCall(toolName, args, positional)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), flags.configPath, flags.overrides(cmd, true))
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.agent.ValidateToolCall(call); err != nil {
				return err
			}
			result, err := a.agent.ExecuteTool(cmd.Context(), call)
			if err != nil {
				return err
			}
			if pretty {
				if result.Success {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatToolResult(call.Tool, result))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), result.Message)
				}
			} else {
				out, err := json.MarshalIndent(usecase.ToolResultPayload(call.Tool, result), "", "  ")
				if err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			if !result.Success {
				return fmt.Errorf("%s failed: %s", call.Tool, result.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&toolName, "tool", "", "tool name")
	cmd.Flags().StringVar(&args, "args", "", "tool arguments as a JSON object")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "print a markdown summary instead of JSON")
	return cmd
}

// parseExecCall accepts either --tool/--args or a single JSON object.
func parseExecCall(toolName, args string, positional []string) (domain.ToolCall, error) {
	switch {
	case toolName != "" && len(positional) > 0:
		return domain.ToolCall{}, errors.New("pass either --tool or a JSON tool call, not both")
	case toolName != "":
		return usecase.ConvertModelToolCall("", toolName, json.RawMessage(args))
	case len(positional) == 1:
		var raw execCall
		if err := json.Unmarshal([]byte(positional[0]), &raw); err != nil {
			return domain.ToolCall{}, domain.NewDomainError("exec", domain.ErrInvalidToolCall, err.Error())
		}
		if raw.Tool == "" {
			return domain.ToolCall{}, domain.NewDomainError("exec", domain.ErrInvalidToolCall, "missing \"tool\"")
		}
		call, err := usecase.ConvertModelToolCall("", raw.Tool, raw.Parameters)
		if err != nil {
			return domain.ToolCall{}, err
		}
		call.Thought = raw.Thought
		return call, nil
	default:
		return domain.ToolCall{}, errors.New("nothing to execute: pass a JSON tool call or --tool")
	}
}

func newDetectCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "detect MESSAGE...",
		Short: "Print the tool calls a message would trigger, without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags.configPath, flags.overrides(cmd, true))
			if err != nil {
				return err
			}
			defer a.close()

			calls := a.agent.DetectToolCalls(strings.Join(args, " "))
			if calls == nil {
				calls = []domain.ToolCall{}
			}
			out, err := json.MarshalIndent(calls, "", "  ")
			if err != nil {
				return fmt.Errorf("encode calls: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newToolsCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the available tools and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags.configPath, flags.overrides(cmd, false))
			if err != nil {
				return err
			}
			defer a.close()

			if asJSON {
				out, err := json.MarshalIndent(a.agent.ToolDefinitions(), "", "  ")
				if err != nil {
					return fmt.Errorf("encode definitions: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			catalog := strings.Join(a.agent.ToolCatalog(), "\n")
			fmt.Fprint(cmd.OutOrStdout(), cli.NewMarkdownRenderer(0).Render(catalog))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print function-calling definitions as JSON")
	return cmd
}

func newCheckPathCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-path PATH...",
		Short: "Report whether the safety rules would let tools touch each path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags.configPath, flags.overrides(cmd, false))
			if err != nil {
				return err
			}
			defer a.close()

			blocked := 0
			for _, p := range args {
				verdict := "allowed"
				if !a.agent.IsPathAllowed(p) {
					verdict = "blocked"
					blocked++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", verdict, p)
			}
			if blocked > 0 {
				return fmt.Errorf("%d of %d path(s) blocked", blocked, len(args))
			}
			return nil
		},
	}
}

func newMCPCmd(flags *rootFlags) *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tools over MCP on stdio, or HTTP with --http",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ov := flags.overrides(cmd, true)
			ov.stdioReserved = httpAddr == ""
			a, err := newApp(cmd.Context(), flags.configPath, ov)
			if err != nil {
				return err
			}
			defer a.close()

			srv := mcpserver.New(a.agent, "chatter", version, a.log)
			addr := httpAddr
			if addr == "" {
				addr = a.cfg.MCP.HTTPAddr
			}
			if addr == "" {
				return srv.ServeStdio(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return srv.ListenAndServe(cmd.Context(), addr, mcpserver.HTTPOptions{
				Limits: middleware.Limits{
					RequestsPerMinute: a.cfg.MCP.RequestsPerMinute,
					Burst:             a.cfg.MCP.Burst,
					TrustedProxies:    a.cfg.MCP.TrustedProxies,
				},
				MaxBodyBytes: a.cfg.MCP.MaxBodyBytes,
			})
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address (e.g. 127.0.0.1:8765)")
	return cmd
}
