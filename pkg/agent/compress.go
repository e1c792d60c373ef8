package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kadirpekel/deepresearch/pkg/llms"
	"github.com/kadirpekel/deepresearch/pkg/logger"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
	"github.com/kadirpekel/deepresearch/pkg/research"
	"github.com/kadirpekel/deepresearch/pkg/tools"
)

// compressedClaim is one evidence-backed statement distilled from the
// worker's notes.
type compressedClaim struct {
	Text          string `json:"text" jsonschema:"description=One factual claim answering part of the sub-question"`
	SourceIndices []int  `json:"source_indices" jsonschema:"minItems=1,description=1-based indices of the sources supporting this claim"`
}

type compressedFindings struct {
	Claims []compressedClaim `json:"claims"`
}

var compressionSchema = llms.MustSchemaFor("compressed_findings", &compressedFindings{})

const compressionPromptTemplate = `Distill the research notes below into a list of factual claims answering the sub-question. Each claim must cite at least one of the numbered sources by its index. Do not invent sources or claims; omit anything the notes do not support.

Sub-question: %s

Sources:
%s

Notes:
%s`

// compress turns the worker's conversation into the final Findings artifact.
// Reflection observations are strategy, not evidence, and are excluded.
func (w *Worker) compress(ctx context.Context, task *research.WorkerTask, conversation []*protocol.Message, rawNotes []string, sources *research.SourceList, status research.FindingsStatus) *research.Findings {
	findings := &research.Findings{
		TaskID:   task.ID,
		RawNotes: rawNotes,
		Sources:  sources.Sources(),
		Status:   status,
	}

	notes := collectEvidence(conversation)
	if len(notes) == 0 || sources.Len() == 0 {
		return findings
	}

	prompt := fmt.Sprintf(compressionPromptTemplate,
		task.SubQuestion, formatSourceList(findings.Sources), strings.Join(notes, "\n\n"))

	var compressed compressedFindings
	err := w.adapter.CompleteStructuredInto(ctx,
		[]*protocol.Message{protocol.NewUserMessage(prompt)},
		compressionSchema, &compressed)
	if err != nil {
		if ctx.Err() != nil {
			return research.FailedFindings(task.ID, research.ErrCancelled)
		}
		logger.GetLogger().Error("compression failed", "task_id", task.ID, "error", err)
		findings.Status = research.StatusFailed
		findings.Error = err.Error()
		return findings
	}

	findings.CompressedText = renderClaims(compressed.Claims, sources.Len())
	if findings.CompressedText == "" {
		findings.Status = research.StatusFailed
		findings.Error = "compression produced no source-backed claims"
	}
	return findings
}

// collectEvidence pulls assistant narration and search observations out of
// the conversation, skipping reflections.
func collectEvidence(conversation []*protocol.Message) []string {
	var notes []string
	for _, msg := range conversation {
		switch msg.Role {
		case protocol.RoleAssistant:
			if msg.Content != "" {
				notes = append(notes, msg.Content)
			}
		case protocol.RoleObservation:
			if msg.Meta["tool"] == tools.ToolReflect {
				continue
			}
			if msg.Content != "" {
				notes = append(notes, msg.Content)
			}
		}
	}
	return notes
}

// renderClaims produces the bulleted compressed text. Claims whose source
// indices are all out of range are dropped; in-range indices are kept.
func renderClaims(claims []compressedClaim, sourceCount int) string {
	var sb strings.Builder
	for _, claim := range claims {
		var valid []string
		for _, idx := range claim.SourceIndices {
			if idx >= 1 && idx <= sourceCount {
				valid = append(valid, strconv.Itoa(idx))
			}
		}
		if claim.Text == "" || len(valid) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s [%s]\n", claim.Text, strings.Join(valid, ",")))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatSourceList(sources []research.Source) string {
	var sb strings.Builder
	for i, s := range sources {
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, s.Title, s.URL))
	}
	return strings.TrimRight(sb.String(), "\n")
}
