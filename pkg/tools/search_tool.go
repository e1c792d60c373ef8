package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/deepresearch/pkg/llms"
	"github.com/kadirpekel/deepresearch/pkg/research"
	"github.com/kadirpekel/deepresearch/pkg/search"
)

const searchDescription = "Search the web for current information. " +
	"Takes a list of queries and returns summarized results with sources."

type searchArgs struct {
	Queries            []string `json:"queries" jsonschema:"description=Search queries to execute,minItems=1"`
	MaxResultsPerQuery int      `json:"max_results_per_query,omitempty" jsonschema:"description=Maximum results per query"`
}

// SearchTool invokes the search pipeline and records every returned source
// in the loop's source list, so observation source numbers stay stable
// across calls and match the indices cited in compressed findings.
type SearchTool struct {
	service *search.Service
	sources *research.SourceList
	info    ToolInfo
}

// NewSearchTool binds the pipeline to a per-loop source list.
func NewSearchTool(service *search.Service, sources *research.SourceList) *SearchTool {
	schema := llms.MustSchemaFor("search", &searchArgs{})
	return &SearchTool{
		service: service,
		sources: sources,
		info: ToolInfo{
			Name:        ToolSearch,
			Description: searchDescription,
			Parameters:  schema.Schema,
		},
	}
}

func (t *SearchTool) GetInfo() ToolInfo {
	return t.info
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	queries, err := stringSlice(args["queries"])
	if err != nil || len(queries) == 0 {
		return errorResult(ToolSearch, fmt.Errorf("search requires a non-empty queries list"))
	}

	batch := &search.Batch{Queries: queries}
	if raw, ok := args["max_results_per_query"]; ok {
		if n, ok := toInt(raw); ok && n > 0 {
			batch.MaxResultsPerQuery = n
		}
	}

	result, err := t.service.Execute(ctx, batch)
	if err != nil {
		return errorResult(ToolSearch, err)
	}

	if len(result.Results) == 0 {
		return successResult(ToolSearch,
			"No valid search results found. Please try different search queries.")
	}

	var sb strings.Builder
	sb.WriteString("Search results: \n")
	for _, r := range result.Results {
		index := t.sources.Add(r.URL, r.Title)
		sb.WriteString(fmt.Sprintf("\n\n--- SOURCE %d: %s ---\n", index, r.Title))
		sb.WriteString(fmt.Sprintf("URL: %s\n\n", r.URL))
		sb.WriteString(fmt.Sprintf("SUMMARY:\n%s\n", r.Summary))
		if len(r.KeyExcerpts) > 0 {
			sb.WriteString("\nKEY EXCERPTS:\n")
			for _, excerpt := range r.KeyExcerpts {
				sb.WriteString(fmt.Sprintf("- %s\n", excerpt))
			}
		}
		sb.WriteString("\n" + strings.Repeat("-", 80) + "\n")
	}

	return successResult(ToolSearch, sb.String())
}

func stringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string list, got %T element", item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", value)
	}
}

func toInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
