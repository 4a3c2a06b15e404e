package validate

import (
	"io"

	json "github.com/goccy/go-json"
)

// Report is the JSON-serializable form of a validation run.
type Report struct {
	TotalFindings int                    `json:"total_findings"`
	Categories    map[string]CategorySum `json:"categories"`
	Findings      []Finding              `json:"findings"`
}

// CategorySum summarizes findings for a single category.
type CategorySum struct {
	Total   int    `json:"total"`
	Fixable int    `json:"fixable"`
	Fixed   int    `json:"fixed"`
	Label   string `json:"label"`
}

var categoryLabels = map[Category]string{
	CatBrokenRef:     "Broken References",
	CatDuplicateKey:  "Duplicate Keys",
	CatNormalization: "Non-Canonical Email Addresses",
	CatAllocator:     "Ref Allocator Drift",
	CatIndex:         "Username Index Mismatches",
	CatAttrDecode:    "Undecodable Stored Attributes",
}

// GenerateReport builds a Report from the validator's current findings.
func GenerateReport(v *Validator) *Report {
	r := &Report{
		TotalFindings: len(v.findings),
		Categories:    make(map[string]CategorySum),
		Findings:      v.findings,
	}

	catCounts := make(map[Category]*CategorySum)
	for _, f := range v.findings {
		cs, ok := catCounts[f.Category]
		if !ok {
			cs = &CategorySum{Label: categoryLabels[f.Category]}
			catCounts[f.Category] = cs
		}
		cs.Total++
		if f.Fixable {
			cs.Fixable++
		}
		if f.Fixed {
			cs.Fixed++
		}
	}
	for cat, cs := range catCounts {
		r.Categories[cat.String()] = *cs
	}

	return r
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
