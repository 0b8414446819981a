package cleaning

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownUniversity fills the university slot when none can be derived.
const UnknownUniversity = "Unknown"

var (
	splitExpr  = regexp.MustCompile(`,| at | @ `)
	mcgillExpr = regexp.MustCompile(`(?i)^mcg(ill)?\.?$`)
	ubcExpr    = regexp.MustCompile(`(?i)^(ubc|u\.?b\.?c\.?|university of british columbia)$`)
	ofWordExpr = regexp.MustCompile(`\bOf\b`)
)

// SplitProgram is the rule-based fallback for program/university
// standardization: "program, university" (also "at" / "@") with a few
// well-known university expansions.
func SplitProgram(text string) (program, university string) {
	s := strings.TrimSpace(strings.Trim(collapse(text), ","))

	var parts []string
	for _, p := range splitExpr.Split(s, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		program = title(parts[0])
	}
	if len(parts) > 1 {
		university = parts[1]
	}

	switch {
	case university == "":
		return program, UnknownUniversity
	case mcgillExpr.MatchString(university):
		return program, "McGill University"
	case ubcExpr.MatchString(university):
		return program, "University of British Columbia"
	default:
		return program, ofWordExpr.ReplaceAllString(title(university), "of")
	}
}

// title upper-cases the first letter of every word and lowers the rest.
// Casers keep state, so one is built per call.
func title(s string) string {
	return cases.Title(language.Und).String(s)
}
