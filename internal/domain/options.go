package domain

import "fmt"

// Depth controls how thorough the remote research should be.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
	DepthMaximum  Depth = "maximum"
)

// OutputFormat controls the shape of the final report.
type OutputFormat string

const (
	FormatSummary  OutputFormat = "summary"
	FormatDetailed OutputFormat = "detailed"
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
)

// SourceScope restricts which kinds of sources the research may use.
type SourceScope string

const (
	ScopeWeb      SourceScope = "web"
	ScopeAcademic SourceScope = "academic"
	ScopeNews     SourceScope = "news"
	ScopeAll      SourceScope = "all"
)

// Options are the per-job research settings.
type Options struct {
	Depth            Depth        `json:"depth"`
	OutputFormat     OutputFormat `json:"output_format"`
	SourceScope      SourceScope  `json:"source_scope"`
	IncludeCitations bool         `json:"include_citations"`
	Refine           bool         `json:"refine"`
}

// DefaultOptions returns the options used when a caller leaves fields empty.
func DefaultOptions() Options {
	return Options{
		Depth:            DepthStandard,
		OutputFormat:     FormatMarkdown,
		SourceScope:      ScopeAll,
		IncludeCitations: true,
	}
}

// Normalize fills empty enum fields with defaults and validates the rest.
func (o Options) Normalize() (Options, error) {
	def := DefaultOptions()
	if o.Depth == "" {
		o.Depth = def.Depth
	}
	if o.OutputFormat == "" {
		o.OutputFormat = def.OutputFormat
	}
	if o.SourceScope == "" {
		o.SourceScope = def.SourceScope
	}

	switch o.Depth {
	case DepthQuick, DepthStandard, DepthDeep, DepthMaximum:
	default:
		return o, fmt.Errorf("unknown depth %q", o.Depth)
	}
	switch o.OutputFormat {
	case FormatSummary, FormatDetailed, FormatMarkdown, FormatJSON:
	default:
		return o, fmt.Errorf("unknown output format %q", o.OutputFormat)
	}
	switch o.SourceScope {
	case ScopeWeb, ScopeAcademic, ScopeNews, ScopeAll:
	default:
		return o, fmt.Errorf("unknown source scope %q", o.SourceScope)
	}
	return o, nil
}
