package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tomatyss/chatter/internal/usecase"
)

const defaultRecentMessages = 10

// SessionOptions tunes a Session.
type SessionOptions struct {
	RecentMessages int        // completion window, 0 = 10
	Width          int        // markdown wrap width, 0 = 80
	Symbols        *SymbolSet // nil = DetectSymbols()
	Logger         *slog.Logger
}

// Session is an interactive line-oriented front end for an Agent. Lines
// starting with /agent are commands; anything else is scanned for tool
// calls, which are executed and rendered.
type Session struct {
	agent  *usecase.Agent
	out    io.Writer
	styles Styles
	sym    SymbolSet
	md     *MarkdownRenderer
	window int
	logger *slog.Logger

	recent    []string
	noticedAt int // tools executed when the last completion notice was shown
}

// NewSession writes all output to out.
func NewSession(agent *usecase.Agent, out io.Writer, opts SessionOptions) *Session {
	if opts.RecentMessages <= 0 {
		opts.RecentMessages = defaultRecentMessages
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	sym := DetectSymbols()
	if opts.Symbols != nil {
		sym = *opts.Symbols
	}
	return &Session{
		agent:  agent,
		out:    out,
		styles: NewStyles(out),
		sym:    sym,
		md:     NewMarkdownRenderer(opts.Width),
		window: opts.RecentMessages,
		logger: opts.Logger,
	}
}

// Run reads lines from in until EOF, /quit or /exit, or ctx is done.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	s.prompt()
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		default:
			s.HandleLine(ctx, line)
		}
		s.prompt()
	}
	return scanner.Err()
}

// HandleLine dispatches one input line. For free text it returns the
// combined tool results, the text a caller would hand back to a model.
func (s *Session) HandleLine(ctx context.Context, line string) string {
	if line == "/agent" || strings.HasPrefix(line, "/agent ") {
		s.HandleCommand(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/agent")))
		return ""
	}
	return s.ProcessMessage(ctx, line)
}

// HandleCommand runs one /agent subcommand; args excludes the "/agent"
// prefix.
func (s *Session) HandleCommand(ctx context.Context, args string) {
	args = strings.TrimSpace(args)
	fields := strings.Fields(args)
	if len(fields) == 0 {
		s.help()
		return
	}
	cmd := fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(args, cmd))
	s.logger.Debug("agent command", "command", cmd)

	switch cmd {
	case "on", "enable":
		s.agent.SetEnabled(ctx, true)
		s.say(s.styles.Success, s.sym.Success, "Agent mode enabled. I can now execute tools to help with tasks.")
	case "off", "disable":
		s.agent.SetEnabled(ctx, false)
		s.say(s.styles.Warning, s.sym.Info, "Agent mode disabled.")
	case "status":
		s.status()
	case "history":
		s.history()
	case "clear":
		s.agent.ClearHistory()
		s.noticedAt = 0
		s.say(s.styles.Success, s.sym.Success, "Tool execution history cleared.")
	case "tools":
		s.tools()
	case "config":
		s.config()
	case "dry-run":
		s.dryRun(ctx, rest)
	case "allow-path":
		if rest == "" {
			s.println("Usage: /agent allow-path <path>")
			return
		}
		s.agent.AddAllowedPath(ctx, rest)
		s.say(s.styles.Success, s.sym.Success, "Added allowed path: "+rest)
	case "forbid-path":
		if rest == "" {
			s.println("Usage: /agent forbid-path <path>")
			return
		}
		s.agent.AddForbiddenPath(ctx, rest)
		s.say(s.styles.Warning, s.sym.Warning, "Added forbidden path: "+rest)
	case "check-path":
		if rest == "" {
			s.println("Usage: /agent check-path <path>")
			return
		}
		if s.agent.IsPathAllowed(rest) {
			s.say(s.styles.Success, s.sym.Success, fmt.Sprintf("Path '%s' is permitted by the safety manager.", rest))
		} else {
			s.say(s.styles.Error, s.sym.Warning, fmt.Sprintf("Path '%s' would be blocked by safety rules.", rest))
		}
	case "help":
		s.help()
	default:
		s.say(s.styles.Error, s.sym.Error, "Unknown agent command. Use '/agent help' for available commands.")
	}
}

// ProcessMessage records message for completion tracking, then detects and
// runs its tool calls. It returns the formatted results joined by blank
// lines, or "" when nothing ran.
func (s *Session) ProcessMessage(ctx context.Context, message string) string {
	s.remember(message)
	if !s.agent.IsEnabled() {
		return ""
	}

	calls := s.agent.DetectToolCalls(message)
	results := make([]string, 0, len(calls))
	for _, call := range calls {
		s.println(fmt.Sprintf("%s %s Executing tool: %s",
			s.sym.Tool, s.styles.Label.Render("AGENT:"), s.styles.Tool.Render(call.Tool)))
		if call.Thought != "" {
			s.println(fmt.Sprintf("   %s %s", s.sym.Thought, s.styles.Muted.Render(call.Thought)))
		}

		result, err := s.agent.ExecuteTool(ctx, call)
		switch {
		case err != nil:
			s.println("   " + s.styles.Error.Render(s.sym.Error+" Tool execution error: "+err.Error()))
			s.println(indent(Humanize(err).Render(s.sym.Bullet), "   "))
			results = append(results, fmt.Sprintf("Tool %s error: %v", call.Tool, err))
		case !result.Success:
			msg := result.Message
			if msg == "" {
				msg = "Unknown error"
			}
			s.println("   " + s.styles.Error.Render(s.sym.Error+" "+msg))
			results = append(results, fmt.Sprintf("Tool %s failed: %s", call.Tool, msg))
		default:
			if result.Message != "" {
				s.println("   " + s.styles.Success.Render(s.sym.Success+" "+result.Message))
			}
			formatted := FormatToolResult(call.Tool, result)
			s.println(s.md.Render(formatted))
			results = append(results, formatted)
		}
	}

	s.checkCompletion()
	return strings.Join(results, "\n\n")
}

// Recent returns the completion window, oldest first.
func (s *Session) Recent() []string {
	return append([]string(nil), s.recent...)
}

func (s *Session) remember(message string) {
	s.recent = append(s.recent, message)
	if len(s.recent) > s.window {
		s.recent = append([]string(nil), s.recent[len(s.recent)-s.window:]...)
	}
}

// checkCompletion prints a notice at most once per batch of new tool
// executions.
func (s *Session) checkCompletion() {
	executed := s.agent.Status().ToolsExecuted
	if executed == 0 || executed <= s.noticedAt {
		return
	}
	if !s.agent.IsTaskComplete(s.recent) {
		return
	}
	s.noticedAt = executed

	status := s.agent.CompletionStatus(s.recent)
	confidence := s.agent.CompletionConfidence(s.recent)
	s.println("")
	s.say(s.styles.Success, s.sym.Success, "Task appears to be complete! The agent has finished the requested work.")
	s.println("   " + status.Description())
	s.println(fmt.Sprintf("   Confidence: %.0f%%", confidence*100))
	if matches := s.agent.CompletionPatternMatches(s.recent); len(matches) > 0 {
		s.println("   Matching patterns:")
		for _, m := range matches {
			s.println(fmt.Sprintf("      %s %s", s.sym.Bullet, m))
		}
	}
}

func (s *Session) status() {
	st := s.agent.Status()
	s.heading("Agent Status:")
	s.println("   Enabled: " + s.styles.YesNo(st.Enabled, true))
	s.println(fmt.Sprintf("   Tools executed: %d", st.ToolsExecuted))
	s.println("   Working directory: " + st.WorkingDirectory)
	s.println("   Dry run mode: " + s.styles.YesNo(st.DryRunMode, false))
	s.println("   Available tools: " + strings.Join(st.AvailableTools, ", "))
}

func (s *Session) history() {
	history := s.agent.History()
	if len(history) == 0 {
		s.println("No tool execution history.")
		return
	}
	s.heading("Tool Execution History:")
	for i, call := range history {
		s.println(fmt.Sprintf("   %d. %s %s", i+1,
			s.styles.Tool.Render(call.Tool), s.styles.Muted.Render(fmt.Sprintf("(%d)", len(call.Parameters)))))
		if call.Thought != "" {
			s.println(fmt.Sprintf("      %s %s", s.sym.Thought, call.Thought))
		}
	}
}

func (s *Session) tools() {
	s.heading("Available Tools:")
	var b strings.Builder
	for _, entry := range s.agent.ToolCatalog() {
		b.WriteString(entry)
		b.WriteString("\n")
	}
	s.println(s.md.Render(b.String()))
}

func (s *Session) config() {
	cfg := s.agent.Config()
	s.heading("Agent Configuration:")
	s.println("   Enabled: " + s.styles.YesNo(cfg.Enabled, true))
	s.println(fmt.Sprintf("   Max file size: %d bytes", cfg.MaxFileSize))
	s.println("   Working directory: " + cfg.WorkingDirectory)
	s.println("   Auto backup: " + s.styles.YesNo(cfg.AutoBackup, true))
	s.println("   Dry run mode: " + s.styles.YesNo(cfg.DryRunMode, false))
	s.println("   Allowed extensions: " + strings.Join(cfg.AllowedExtensions, ", "))
	s.pathList("Allowed paths:", s.agent.AllowedPaths())
	s.pathList("Forbidden paths:", s.agent.ForbiddenPaths())
}

func (s *Session) pathList(title string, paths []string) {
	if len(paths) == 0 {
		return
	}
	s.println("   " + title)
	for _, p := range paths {
		s.println(fmt.Sprintf("      %s %s", s.sym.Bullet, p))
	}
}

func (s *Session) dryRun(ctx context.Context, arg string) {
	cfg := s.agent.Config()
	switch arg {
	case "on":
		cfg.DryRunMode = true
	case "off":
		cfg.DryRunMode = false
	default:
		s.println("Usage: /agent dry-run <on|off>")
		return
	}
	if err := s.agent.UpdateConfig(ctx, cfg); err != nil {
		s.say(s.styles.Error, s.sym.Error, fmt.Sprintf("Failed to update dry-run mode: %v", err))
		return
	}
	if cfg.DryRunMode {
		s.say(s.styles.Warning, s.sym.Info, "Dry-run mode enabled. No changes will be written.")
	} else {
		s.say(s.styles.Success, s.sym.Success, "Dry-run mode disabled.")
	}
}

var helpLines = [][2]string{
	{"/agent on", "Enable agent mode"},
	{"/agent off", "Disable agent mode"},
	{"/agent status", "Show agent status"},
	{"/agent history", "Show tool execution history"},
	{"/agent clear", "Clear tool execution history"},
	{"/agent tools", "List available tools and schemas"},
	{"/agent config", "Show agent configuration"},
	{"/agent dry-run <on|off>", "Toggle dry-run mode (no writes)"},
	{"/agent allow-path <path>", "Allow an extra path for tool access"},
	{"/agent forbid-path <path>", "Forbid a specific path"},
	{"/agent check-path <path>", "Check whether a path is allowed"},
	{"/agent help", "Show this help"},
}

func (s *Session) help() {
	s.heading("Agent Commands:")
	for _, l := range helpLines {
		s.println(fmt.Sprintf("   %s - %s", s.styles.Info.Render(l[0]), l[1]))
	}
	s.println("")
	s.println(s.styles.Warning.Render("TIP:") + " When agent mode is enabled, tool requests in your messages")
	s.println("   are detected and executed. For example:")
	s.println(fmt.Sprintf("   %s \"Please read the file notes.md\"", s.sym.Bullet))
	s.println(fmt.Sprintf("   %s \"Search for 'TODO' in the project\"", s.sym.Bullet))
	s.println(fmt.Sprintf("   %s \"List all files in the src directory\"", s.sym.Bullet))
	s.println(fmt.Sprintf("   %s a JSON line: {\"tool\": \"read_file\", \"parameters\": {\"path\": \"notes.md\"}}", s.sym.Bullet))
}

func (s *Session) heading(text string) {
	s.println(s.styles.Label.Render("AGENT:") + " " + text)
}

func (s *Session) say(style lipgloss.Style, symbol, text string) {
	s.println(symbol + " " + s.styles.Label.Render("AGENT:") + " " + style.Render(text))
}

func (s *Session) prompt() {
	fmt.Fprint(s.out, s.styles.Muted.Render("> "))
}

func (s *Session) println(line string) {
	fmt.Fprintln(s.out, line)
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
