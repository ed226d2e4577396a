package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"

	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/infra/tracer"
)

const defaultSearchMaxResults = 100

// errStopWalk ends a walk early without reporting an error.
var errStopWalk = errors.New("stop walk")

// SearchFilesTool greps text files under a directory.
type SearchFilesTool struct{ env }

func (t *SearchFilesTool) Name() string { return domain.ToolSearchFiles }
func (t *SearchFilesTool) Description() string {
	return "Search for text patterns across files in a directory"
}

func (t *SearchFilesTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Text pattern or regex to search for"},
			"directory": {"type": "string", "description": "Directory to search in (default: current directory)"},
			"file_pattern": {"type": "string", "description": "File name pattern to filter (e.g., '*.rs', '*.txt')"},
			"case_sensitive": {"type": "boolean", "description": "Whether the search should be case sensitive (default: false)"},
			"max_results": {"type": "integer", "description": "Maximum number of results to return (default: 100)"}
		},
		"required": ["pattern"]
	}`)
}

type searchFilesParams struct {
	Pattern       string `json:"pattern"`
	Directory     string `json:"directory"`
	FilePattern   string `json:"file_pattern"`
	CaseSensitive bool   `json:"case_sensitive"`
	MaxResults    int    `json:"max_results"`
}

type searchMatch struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

type searchHit struct {
	File    string        `json:"file"`
	Line    int           `json:"line"`
	Content string        `json:"content"`
	Matches []searchMatch `json:"matches"`
}

func (t *SearchFilesTool) Execute(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	return Execute(ctx, call, t.logger, t.search)
}

func (t *SearchFilesTool) search(ctx context.Context, span trace.Span, p searchFilesParams) (*domain.ToolResult, error) {
	if err := RequireField("pattern", p.Pattern); err != nil {
		return nil, MissingParam(t.Name(), "pattern")
	}
	if p.Directory == "" {
		p.Directory = "."
	}
	if p.MaxResults <= 0 {
		p.MaxResults = t.limits.SearchMaxResults
		if p.MaxResults <= 0 {
			p.MaxResults = defaultSearchMaxResults
		}
	}

	re, err := compileSearchPattern(p.Pattern, p.CaseSensitive)
	if err != nil {
		return domain.Failed("Invalid pattern: %v", err), nil
	}

	var nameFilter *regexp.Regexp
	if p.FilePattern != "" {
		if nameFilter, err = globRegexp(p.FilePattern); err != nil {
			return domain.Failed("Invalid file pattern: %v", err), nil
		}
	}

	root := t.resolve(p.Directory)
	results := make([]searchHit, 0)
	filesSearched, visited := 0, 0

	walkErr := t.fs.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped; a missing root ends the walk.
			if path == root {
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root {
			if ok, err := t.visit(path, d); !ok {
				return err
			}
		}
		visited++
		if t.limits.MaxWalkEntries > 0 && visited > t.limits.MaxWalkEntries {
			return errStopWalk
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if nameFilter != nil && !nameFilter.MatchString(d.Name()) {
			return nil
		}
		if !isTextPath(path) {
			return nil
		}

		filesSearched++
		data, err := t.fs.ReadFile(path)
		if err != nil || !utf8.Valid(data) {
			return nil
		}
		for i, line := range splitLines(string(data)) {
			locs := re.FindAllStringIndex(line, -1)
			if locs == nil {
				continue
			}
			hit := searchHit{File: path, Line: i + 1, Content: line, Matches: make([]searchMatch, 0, len(locs))}
			for _, loc := range locs {
				hit.Matches = append(hit.Matches, searchMatch{Start: loc[0], End: loc[1], Text: line[loc[0]:loc[1]]})
			}
			results = append(results, hit)
			if len(results) >= p.MaxResults {
				return errStopWalk
			}
		}
		return nil
	})

	switch {
	case walkErr == nil, errors.Is(walkErr, errStopWalk):
	case errors.Is(walkErr, context.Canceled), errors.Is(walkErr, context.DeadlineExceeded):
		return nil, walkErr
	case errors.Is(walkErr, fs.ErrNotExist):
		return domain.Failed("Path does not exist: %s", p.Directory), nil
	default:
		return domain.Failed("Failed to search directory: %v", walkErr), nil
	}

	span.SetAttributes(
		tracer.IntAttr("search.files_searched", filesSearched),
		tracer.IntAttr("search.matches", len(results)),
	)

	return domain.Succeeded(map[string]any{
		"pattern":        p.Pattern,
		"directory":      p.Directory,
		"files_searched": filesSearched,
		"matches_found":  len(results),
		"results":        results,
	}, fmt.Sprintf("Found %d matches in %d files", len(results), filesSearched)), nil
}

// compileSearchPattern compiles pattern as a regexp, case-insensitive
// unless asked otherwise. A pattern that is not a valid regexp is searched
// for literally.
func compileSearchPattern(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	prefix := "(?i)"
	if caseSensitive {
		prefix = ""
	}
	if re, err := regexp.Compile(prefix + pattern); err == nil {
		return re, nil
	}
	return regexp.Compile(prefix + regexp.QuoteMeta(pattern))
}
