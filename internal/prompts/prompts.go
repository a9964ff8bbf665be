package prompts

import "github.com/timmy/deepresearch/internal/domain"

// ============================================================================
// Research Input Instructions
// ============================================================================

// DepthInstructions are prepended before the user's query.
var DepthInstructions = map[domain.Depth]string{
	domain.DepthQuick:    "Give a brief answer in a few short paragraphs, covering only the most important points.",
	domain.DepthStandard: "Research the question thoroughly and give a balanced answer covering the main perspectives.",
	domain.DepthDeep:     "Research the question in depth: consult many independent sources, compare conflicting claims and explain the reasoning behind your conclusions.",
	domain.DepthMaximum:  "Perform the most exhaustive research you can: follow every relevant lead, cross-check all key facts against multiple sources, and document open questions and uncertainty explicitly.",
}

// FormatInstructions describe the expected shape of the final report.
var FormatInstructions = map[domain.OutputFormat]string{
	domain.FormatSummary:  "Format the result as a concise executive summary.",
	domain.FormatDetailed: "Format the result as a detailed report with an introduction, findings per topic and a conclusion.",
	domain.FormatMarkdown: "Format the result as a well-structured Markdown document with headings, lists and tables where useful.",
	domain.FormatJSON:     `Format the result as a single JSON object with the keys "summary", "findings" (array of objects with "title" and "detail") and "conclusion".`,
}

// ScopeInstructions restrict which sources the research may rely on.
var ScopeInstructions = map[domain.SourceScope]string{
	domain.ScopeWeb:      "Prefer general web sources.",
	domain.ScopeAcademic: "Prefer peer-reviewed papers, preprints and other academic sources.",
	domain.ScopeNews:     "Prefer recent reporting from reputable news organisations.",
	domain.ScopeAll:      "",
}

// CitationInstruction is appended when the caller asks for citations.
const CitationInstruction = "Cite your sources inline and list every referenced source with its title and URL at the end."

// DocumentsPreamble introduces the inlined document context.
const DocumentsPreamble = "Use the following documents as additional context:"

// DocumentBegin and DocumentEnd wrap every inlined document; %s is the document name.
const (
	DocumentBegin = "--- BEGIN DOCUMENT: %s ---"
	DocumentEnd   = "--- END DOCUMENT: %s ---"
)

// ============================================================================
// Refinement Prompts
// ============================================================================

// RefineInstruction asks the model to tighten an already-finished report.
// The report text follows the instruction.
const RefineInstruction = `You are reviewing a finished research report.
Improve its logical consistency: remove contradictions, make sure every conclusion follows from the findings, and fix unclear transitions.
Keep the original structure, format, facts and citations. Do not add new claims.
Return only the improved report.

Report:
`
