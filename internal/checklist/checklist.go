// Package checklist merges per-chunk completions into a ChecklistResult.
package checklist

import (
	"strings"

	"compliance-rag/internal/domain"
)

// Baseline is attached to every result. It is a fixed summary and is not
// derived from the completions.
var Baseline = []string{
	"Ensure data encryption is enabled",
	"Conduct quarterly audits",
	"Implement multi-factor authentication",
}

// Assemble joins completions with newlines, in the order given.
func Assemble(completions []string) domain.ChecklistResult {
	items := make([]string, len(Baseline))
	copy(items, Baseline)
	return domain.ChecklistResult{
		ComplianceInfo: strings.Join(completions, "\n"),
		Checklist:      items,
	}
}
