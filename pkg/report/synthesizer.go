// Package report implements the final report synthesizer: one model call
// over the brief and all worker findings, followed by citation validation
// against the aggregated source list.
package report

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kadirpekel/deepresearch/pkg/llms"
	"github.com/kadirpekel/deepresearch/pkg/logger"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
	"github.com/kadirpekel/deepresearch/pkg/research"
)

// Report is the final deliverable.
type Report struct {
	// Markdown is the full document including the Sources section.
	Markdown string `json:"markdown"`

	// Sources are the cited sources, in citation-number order.
	Sources []research.Source `json:"sources"`

	// Truncated marks reports produced after an iteration or budget cap
	// ended research early.
	Truncated bool `json:"truncated,omitempty"`

	// Terminal is the supervisor's terminal state.
	Terminal string `json:"terminal,omitempty"`
}

// Synthesizer produces the report from collected findings.
type Synthesizer struct {
	adapter  *llms.Adapter
	language string
}

// NewSynthesizer binds the final-report model.
func NewSynthesizer(adapter *llms.Adapter, language string) *Synthesizer {
	if language == "" {
		language = "English"
	}
	return &Synthesizer{adapter: adapter, language: language}
}

const synthesisPromptTemplate = `Write the final research report answering the brief below, based only on the findings provided. Today's date is %s.

Structure: a short abstract, then topical sections in markdown. Cite sources inline with bracketed numbers like [2] referring to the numbered source list. Only cite numbers from the list. Do not include a sources section; it is appended separately.

Respond in %s.

Brief: %s
%s

Sources:
%s

Findings:
%s`

// citationPattern matches inline citation groups like [1] or [2,5].
var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// Synthesize produces the final report. Citations are validated against the
// aggregated source list; on mismatch, synthesis is re-invoked once with the
// mismatch reported, and any citations still invalid after that are
// stripped.
func (s *Synthesizer) Synthesize(ctx context.Context, brief *research.Brief, findings []*research.Findings) (*Report, error) {
	sources, remapped := aggregateSources(findings)

	prompt := fmt.Sprintf(synthesisPromptTemplate,
		time.Now().Format("Mon Jan 2, 2006"),
		s.language,
		brief.Question,
		renderCriteria(brief),
		renderSources(sources),
		renderFindings(remapped))

	messages := []*protocol.Message{protocol.NewUserMessage(prompt)}

	markdown, err := s.adapter.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("report synthesis failed: %w", err)
	}

	if invalid := invalidCitations(markdown, len(sources)); len(invalid) > 0 {
		logger.GetLogger().Warn("report cites unknown sources, re-invoking synthesis",
			"invalid", invalid)

		messages = append(messages,
			protocol.NewAssistantMessage(markdown),
			protocol.NewUserMessage(fmt.Sprintf(
				"Your report cites source numbers that do not exist: %v. The source list has %d entries. Rewrite the report citing only valid numbers.",
				invalid, len(sources))))

		markdown, err = s.adapter.Complete(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("report synthesis failed: %w", err)
		}
		markdown = stripInvalidCitations(markdown, len(sources))
	}

	cited := citedIndices(markdown)
	report := &Report{
		Markdown: markdown + renderSourcesSection(sources, cited),
	}
	for _, idx := range cited {
		report.Sources = append(report.Sources, sources[idx-1])
	}
	return report, nil
}

// aggregateSources merges every finding's sources into one globally numbered
// list (deduplicated by URL) and rewrites each finding's local citation
// indices to the global numbering.
func aggregateSources(findings []*research.Findings) ([]research.Source, []*research.Findings) {
	var global []research.Source
	byURL := make(map[string]int)

	remapped := make([]*research.Findings, 0, len(findings))
	for _, f := range findings {
		localToGlobal := make(map[int]int, len(f.Sources))
		for i, src := range f.Sources {
			g, ok := byURL[src.URL]
			if !ok {
				global = append(global, src)
				g = len(global)
				byURL[src.URL] = g
			}
			localToGlobal[i+1] = g
		}

		clone := *f
		clone.CompressedText = remapCitations(f.CompressedText, localToGlobal)
		remapped = append(remapped, &clone)
	}
	return global, remapped
}

func remapCitations(text string, localToGlobal map[int]int) string {
	return citationPattern.ReplaceAllStringFunc(text, func(group string) string {
		inner := strings.Trim(group, "[]")
		var out []string
		for _, part := range strings.Split(inner, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			if g, ok := localToGlobal[n]; ok {
				out = append(out, strconv.Itoa(g))
			}
		}
		if len(out) == 0 {
			return ""
		}
		return "[" + strings.Join(out, ",") + "]"
	})
}

// citedIndices returns the sorted unique citation numbers in the text.
func citedIndices(text string) []int {
	seen := make(map[int]bool)
	for _, match := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(match[1], ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				seen[n] = true
			}
		}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func invalidCitations(text string, sourceCount int) []int {
	var invalid []int
	for _, n := range citedIndices(text) {
		if n < 1 || n > sourceCount {
			invalid = append(invalid, n)
		}
	}
	return invalid
}

// stripInvalidCitations removes citation numbers outside the source list,
// dropping the whole bracket when nothing valid remains.
func stripInvalidCitations(text string, sourceCount int) string {
	return citationPattern.ReplaceAllStringFunc(text, func(group string) string {
		inner := strings.Trim(group, "[]")
		var valid []string
		for _, part := range strings.Split(inner, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err == nil && n >= 1 && n <= sourceCount {
				valid = append(valid, strconv.Itoa(n))
			}
		}
		if len(valid) == 0 {
			return ""
		}
		return "[" + strings.Join(valid, ",") + "]"
	})
}

func renderCriteria(brief *research.Brief) string {
	if len(brief.SuccessCriteria) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\nSuccess criteria:\n")
	for _, c := range brief.SuccessCriteria {
		sb.WriteString(fmt.Sprintf("- %s\n", c))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderSources(sources []research.Source) string {
	if len(sources) == 0 {
		return "(no sources were collected)"
	}
	var sb strings.Builder
	for i, src := range sources {
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, src.Title, src.URL))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderFindings(findings []*research.Findings) string {
	if len(findings) == 0 {
		return "(no findings were produced; answer from the brief alone and say that research was inconclusive)"
	}
	var sb strings.Builder
	for i, f := range findings {
		sb.WriteString(fmt.Sprintf("--- Research unit %d (status: %s) ---\n", i+1, f.Status))
		if f.CompressedText != "" {
			sb.WriteString(f.CompressedText + "\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderSourcesSection(sources []research.Source, cited []int) string {
	if len(cited) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n## Sources\n\n")
	for _, n := range cited {
		src := sources[n-1]
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", n, src.Title, src.URL))
	}
	return strings.TrimRight(sb.String(), "\n")
}
