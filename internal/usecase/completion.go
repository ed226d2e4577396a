package usecase

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomatyss/chatter/internal/domain"
)

// Message and history windows the heuristics look at.
const (
	phraseWindow      = 3
	patternToolWindow = 10
	executionWindow   = 5
)

// CompletionWeights tunes the completion heuristic. Every signal adds its
// weight independently; the sum is damped after very recent tool activity
// and capped at 1.
type CompletionWeights struct {
	Phrase     float64
	Pattern    float64
	Execution  float64
	Inactivity float64

	InactivityThreshold time.Duration
	RecencyWindow       time.Duration
	RecencyDamping      float64

	Complete float64
	Likely   float64
	Possibly float64
}

// DefaultCompletionWeights returns the stock calibration.
func DefaultCompletionWeights() CompletionWeights {
	return CompletionWeights{
		Phrase:              0.8,
		Pattern:             0.6,
		Execution:           0.5,
		Inactivity:          0.3,
		InactivityThreshold: 30 * time.Second,
		RecencyWindow:       5 * time.Second,
		RecencyDamping:      0.5,
		Complete:            0.8,
		Likely:              0.5,
		Possibly:            0.3,
	}
}

var completionPhrases = []string{
	"task completed",
	"task complete",
	"finished successfully",
	"done with",
	"completed successfully",
	"task is finished",
	"work is complete",
	"all done",
	"successfully completed",
	"task accomplished",
	"objective achieved",
	"mission accomplished",
	"finished the task",
	"completed the request",
	"task has been completed",
}

// CompletionPattern is a named rule combining message keywords with the
// tools seen recently.
type CompletionPattern struct {
	Name            string
	Description     string
	MessagePatterns []string
	ToolSequence    []string // every name must appear, in any order
	MinTools        int
}

// Matches reports whether every clause of the pattern holds. An empty
// MessagePatterns or ToolSequence clause is vacuously true.
func (p CompletionPattern) Matches(messages []string, history []domain.ToolCall) bool {
	if len(p.MessagePatterns) > 0 && !recentMessagesContain(messages, p.MessagePatterns) {
		return false
	}
	if len(p.ToolSequence) > 0 {
		seen := make(map[string]bool, patternToolWindow)
		for _, call := range lastCalls(history, patternToolWindow) {
			seen[call.Tool] = true
		}
		for _, name := range p.ToolSequence {
			if !seen[name] {
				return false
			}
		}
	}
	return len(history) >= p.MinTools
}

// DefaultCompletionPatterns returns the built-in pattern catalog.
func DefaultCompletionPatterns() []CompletionPattern {
	return []CompletionPattern{
		{
			Name:            "summary_generation",
			Description:     "Task involves creating a summary or report",
			MessagePatterns: []string{"summary", "report", "analysis complete", "findings"},
			ToolSequence:    []string{domain.ToolSearchFiles, domain.ToolReadFile, domain.ToolWriteFile},
			MinTools:        2,
		},
		{
			Name:            "file_organization",
			Description:     "Task involves organizing or restructuring files",
			MessagePatterns: []string{"organized", "restructured", "cleaned up", "files arranged"},
			ToolSequence:    []string{domain.ToolListDirectory, domain.ToolReadFile, domain.ToolWriteFile},
			MinTools:        3,
		},
		{
			Name:            "documentation",
			Description:     "Task involves creating or updating documentation",
			MessagePatterns: []string{"documentation", "readme", "docs updated", "documented"},
			ToolSequence:    []string{domain.ToolReadFile, domain.ToolWriteFile},
			MinTools:        2,
		},
		{
			Name:            "code_analysis",
			Description:     "Task involves analyzing code files",
			MessagePatterns: []string{"analysis", "reviewed", "examined", "code structure"},
			ToolSequence:    []string{domain.ToolSearchFiles, domain.ToolReadFile},
			MinTools:        2,
		},
	}
}

// CompletionDetector estimates whether an agentic task is finished. It is
// advisory: it never blocks or alters execution. The only state it keeps
// is the time of the last tool execution.
type CompletionDetector struct {
	mu            sync.RWMutex
	lastExecution time.Time
	patterns      []CompletionPattern
	weights       CompletionWeights
	now           func() time.Time // for testing
}

// NewCompletionDetector creates a detector with the built-in patterns.
func NewCompletionDetector(weights CompletionWeights) *CompletionDetector {
	return &CompletionDetector{
		patterns: DefaultCompletionPatterns(),
		weights:  weights,
		now:      time.Now,
	}
}

// MarkExecution records that a tool just ran, whatever its outcome.
func (d *CompletionDetector) MarkExecution() {
	d.mu.Lock()
	d.lastExecution = d.now()
	d.mu.Unlock()
}

// LastExecution returns when a tool last ran; zero if none has.
func (d *CompletionDetector) LastExecution() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastExecution
}

// Patterns returns a copy of the pattern catalog.
func (d *CompletionDetector) Patterns() []CompletionPattern {
	return append([]CompletionPattern(nil), d.patterns...)
}

// Confidence returns a score in [0, 1].
func (d *CompletionDetector) Confidence(messages []string, history []domain.ToolCall) float64 {
	w := d.weights
	score := 0.0

	if recentMessagesContain(messages, completionPhrases) {
		score += w.Phrase
	}
	if d.anyPatternMatches(messages, history) {
		score += w.Pattern
	}
	if successfulExecutionShape(history) {
		score += w.Execution
	}

	last := d.LastExecution()
	if !last.IsZero() {
		since := d.now().Sub(last)
		if since > w.InactivityThreshold {
			score += w.Inactivity
		}
		if since < w.RecencyWindow {
			score *= w.RecencyDamping
		}
	}

	if score > 1 {
		return 1
	}
	return score
}

// Status buckets Confidence into a CompletionStatus.
func (d *CompletionDetector) Status(messages []string, history []domain.ToolCall) domain.CompletionStatus {
	c := d.Confidence(messages, history)
	switch {
	case c >= d.weights.Complete:
		return domain.Complete
	case c >= d.weights.Likely:
		return domain.LikelyComplete
	case c >= d.weights.Possibly:
		return domain.PossiblyComplete
	default:
		return domain.InProgress
	}
}

// MatchingPatterns lists "name: description" for every pattern that
// currently matches.
func (d *CompletionDetector) MatchingPatterns(messages []string, history []domain.ToolCall) []string {
	var out []string
	for _, p := range d.patterns {
		if p.Matches(messages, history) {
			out = append(out, fmt.Sprintf("%s: %s", p.Name, p.Description))
		}
	}
	return out
}

func (d *CompletionDetector) anyPatternMatches(messages []string, history []domain.ToolCall) bool {
	for _, p := range d.patterns {
		if p.Matches(messages, history) {
			return true
		}
	}
	return false
}

// successfulExecutionShape looks at the last five calls for a
// read-then-write shape or for repeated file operations.
func successfulExecutionShape(history []domain.ToolCall) bool {
	recent := lastCalls(history, executionWindow)
	if len(recent) == 0 {
		return false
	}

	if len(recent) >= 3 {
		var hasRead, hasWrite bool
		for _, c := range recent {
			switch c.Tool {
			case domain.ToolReadFile, domain.ToolSearchFiles:
				hasRead = true
			case domain.ToolWriteFile, domain.ToolUpdateFile:
				hasWrite = true
			}
		}
		if hasRead && hasWrite {
			return true
		}
	}

	fileOps := 0
	for _, c := range recent {
		switch c.Tool {
		case domain.ToolReadFile, domain.ToolWriteFile, domain.ToolUpdateFile:
			fileOps++
		}
	}
	return fileOps >= 2
}

// recentMessagesContain scans the last three messages, newest first, for
// any of needles, ignoring case.
func recentMessagesContain(messages []string, needles []string) bool {
	for i := len(messages) - 1; i >= 0 && i >= len(messages)-phraseWindow; i-- {
		lower := strings.ToLower(messages[i])
		for _, n := range needles {
			if strings.Contains(lower, n) {
				return true
			}
		}
	}
	return false
}

func lastCalls(history []domain.ToolCall, n int) []domain.ToolCall {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
