package service

import (
	"fmt"
	"strings"

	"github.com/timmy/deepresearch/internal/domain"
	"github.com/timmy/deepresearch/internal/prompts"
)

// BuildResearchInput assembles the remote job input from fixed instruction
// lookups, the literal query and every textual document.
// Order: depth instruction, query, scope, format, citations, documents.
func BuildResearchInput(query string, docs []domain.Document, opts domain.Options) string {
	var sections []string

	if instr := prompts.DepthInstructions[opts.Depth]; instr != "" {
		sections = append(sections, instr)
	}
	sections = append(sections, strings.TrimSpace(query))

	var guidance []string
	if instr := prompts.ScopeInstructions[opts.SourceScope]; instr != "" {
		guidance = append(guidance, instr)
	}
	if instr := prompts.FormatInstructions[opts.OutputFormat]; instr != "" {
		guidance = append(guidance, instr)
	}
	if opts.IncludeCitations {
		guidance = append(guidance, prompts.CitationInstruction)
	}
	if len(guidance) > 0 {
		sections = append(sections, strings.Join(guidance, "\n"))
	}

	var inlined []string
	for _, doc := range docs {
		if !doc.IsText() {
			continue
		}
		inlined = append(inlined, strings.Join([]string{
			fmt.Sprintf(prompts.DocumentBegin, doc.Name),
			doc.Content,
			fmt.Sprintf(prompts.DocumentEnd, doc.Name),
		}, "\n"))
	}
	if len(inlined) > 0 {
		sections = append(sections, prompts.DocumentsPreamble+"\n\n"+strings.Join(inlined, "\n\n"))
	}

	return strings.Join(sections, "\n\n")
}

// buildRefinePrompt wraps finished content in the refinement instruction.
func buildRefinePrompt(content string) string {
	return prompts.RefineInstruction + content
}
