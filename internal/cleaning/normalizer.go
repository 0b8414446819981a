// Package cleaning turns raw survey rows into candidate applicant records.
package cleaning

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"GradScrape/internal/config"
	"GradScrape/internal/domain"
	"GradScrape/internal/ports"
)

var (
	decisionExpr    = regexp.MustCompile(`\b(Accepted|Rejected|Wait\s?listed|Interview|Withdrawn)\s+on\s+(\d{1,2}\s+[A-Za-z]{3}(?:\s+\d{4})?)`)
	termExpr        = regexp.MustCompile(`\b(Fall|Spring|Summer|Winter)\s\d{4}\b`)
	citizenshipExpr = regexp.MustCompile(`(?i)\b(International|American)\b`)
	commentExpr     = regexp.MustCompile(`(?s)(?:Fall|Spring|Summer|Winter)\s\d{4}\s(?:International|American)\s*(.*)`)
	greExpr         = regexp.MustCompile(`\bGRE\s+(\d+)\b`)
	greVerbalExpr   = regexp.MustCompile(`\bGRE V (\d+)\b`)
	greWritingExpr  = regexp.MustCompile(`\bGRE AW (\d+(?:\.\d+)?)`)
	degreeExpr      = regexp.MustCompile(`(?i)\b(Masters|PhD|MFA|PsyD)\b`)
	gpaExpr         = regexp.MustCompile(`\bGPA (\d(?:\.\d+)?)`)
	gpaMentionExpr  = regexp.MustCompile(`GPA \d\.\d+`)
	spaceExpr       = regexp.MustCompile(`\s+`)
)

var dateAddedLayouts = []string{
	"January 2, 2006",
	"January 02, 2006",
	"Jan 2, 2006",
	domain.DateLayout,
	"01/02/2006",
	"2 January 2006",
}

var canonicalDegrees = map[string]string{
	"masters": "Masters",
	"phd":     "PhD",
	"mfa":     "MFA",
	"psyd":    "PsyD",
}

// Normalizer implements ports.Cleaner with the GradCafe text rules.
type Normalizer struct {
	limits config.ValidationConfig
}

var _ ports.Cleaner = (*Normalizer)(nil)

// NewNormalizer applies the given score bounds; zero bounds take the
// standard GPA/GRE scales.
func NewNormalizer(limits config.ValidationConfig) *Normalizer {
	if limits.MaxGPA <= 0 {
		limits.MaxGPA = 5
	}
	if limits.MinGRE <= 0 {
		limits.MinGRE = 260
	}
	if limits.MaxGRE <= 0 {
		limits.MaxGRE = 340
	}
	if limits.MinGREVerbal <= 0 {
		limits.MinGREVerbal = 130
	}
	if limits.MaxGREVerbal <= 0 {
		limits.MaxGREVerbal = 170
	}
	if limits.MaxGREWriting <= 0 {
		limits.MaxGREWriting = 6
	}
	return &Normalizer{limits: limits}
}

// Normalize extracts a candidate record or returns a *domain.RejectedError.
func (n *Normalizer) Normalize(entry domain.RawEntry) (domain.ApplicantRecord, error) {
	institution := collapse(entry.University)
	program := collapse(entry.Program)
	if institution == "" {
		return domain.ApplicantRecord{}, domain.Reject("missing institution")
	}
	if program == "" {
		return domain.ApplicantRecord{}, domain.Reject("missing program")
	}

	text := entry.Text
	outcomeText, decisionText := extractDecision(entry.Decision)

	added, addedOK := parseDateAdded(entry.DateAdded)
	decisionDate, err := resolveDecisionDate(decisionText, added, addedOK)
	if err != nil {
		return domain.ApplicantRecord{}, err
	}

	outcome := domain.ParseOutcome(outcomeText)
	if outcomeText == "" {
		outcome = domain.ParseOutcome(entry.Decision)
		if outcome == domain.OutcomeOther {
			outcome = domain.ParseOutcome(firstWord(entry.Decision))
		}
	}

	record := domain.ApplicantRecord{
		Institution:  institution,
		Program:      program,
		DecisionDate: decisionDate,
		Outcome:      outcome,
		Term:         termExpr.FindString(text),
		Citizenship:  extractCitizenship(text),
		Degree:       extractDegree(text),
		GPA:          extractFloat(gpaExpr, text),
		GRE:          extractFloat(greExpr, text),
		GREVerbal:    extractFloat(greVerbalExpr, text),
		GREWriting:   extractFloat(greWritingExpr, text),
		Comment:      extractComment(text),
		SourceURL:    strings.TrimSpace(entry.EntryURL),
		DateAdded:    strings.TrimSpace(entry.DateAdded),
	}

	if err := n.validate(record); err != nil {
		return domain.ApplicantRecord{}, err
	}
	return record, nil
}

func (n *Normalizer) validate(r domain.ApplicantRecord) error {
	if r.GPA != nil && (*r.GPA <= 0 || *r.GPA > n.limits.MaxGPA) {
		return domain.Reject("gpa %.2f outside (0, %.2f]", *r.GPA, n.limits.MaxGPA)
	}
	if r.GRE != nil && (*r.GRE < n.limits.MinGRE || *r.GRE > n.limits.MaxGRE) {
		return domain.Reject("gre %.0f outside [%.0f, %.0f]", *r.GRE, n.limits.MinGRE, n.limits.MaxGRE)
	}
	if r.GREVerbal != nil && (*r.GREVerbal < n.limits.MinGREVerbal || *r.GREVerbal > n.limits.MaxGREVerbal) {
		return domain.Reject("gre verbal %.0f outside [%.0f, %.0f]", *r.GREVerbal, n.limits.MinGREVerbal, n.limits.MaxGREVerbal)
	}
	if r.GREWriting != nil && (*r.GREWriting < 0 || *r.GREWriting > n.limits.MaxGREWriting) {
		return domain.Reject("gre writing %.1f outside [0, %.1f]", *r.GREWriting, n.limits.MaxGREWriting)
	}
	return nil
}

func extractDecision(decision string) (string, string) {
	m := decisionExpr.FindStringSubmatch(decision)
	if m == nil {
		return "", ""
	}
	return m[1], collapse(m[2])
}

// resolveDecisionDate parses "10 Jan [2024]". A missing year is taken from the
// date the entry was added, stepping back a year when that would put the
// decision after the entry.
func resolveDecisionDate(decision string, added time.Time, addedOK bool) (time.Time, error) {
	if decision == "" {
		if !addedOK {
			return time.Time{}, domain.Reject("no decision date and no date added")
		}
		return added, nil
	}

	if parsed, err := time.Parse("2 Jan 2006", decision); err == nil {
		return parsed, nil
	}

	parsed, err := time.Parse("2 Jan", decision)
	if err != nil {
		return time.Time{}, domain.Reject("unreadable decision date %q", decision)
	}
	if !addedOK {
		return time.Time{}, domain.Reject("decision date %q has no year and no date added", decision)
	}

	resolved := time.Date(added.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
	if resolved.After(added) {
		resolved = resolved.AddDate(-1, 0, 0)
	}
	return resolved, nil
}

func parseDateAdded(value string) (time.Time, bool) {
	value = collapse(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateAddedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func extractCitizenship(text string) string {
	m := citizenshipExpr.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	lower := strings.ToLower(m[1])
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func extractDegree(text string) string {
	m := degreeExpr.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return canonicalDegrees[strings.ToLower(m[1])]
}

func extractComment(text string) string {
	m := commentExpr.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	comment := strings.TrimSpace(m[1])
	comment = gpaMentionExpr.ReplaceAllString(comment, "")
	return strings.TrimSpace(comment)
}

func extractFloat(expr *regexp.Regexp, text string) *float64 {
	m := expr.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return domain.Float(v)
}

func firstWord(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func collapse(value string) string {
	return strings.TrimSpace(spaceExpr.ReplaceAllString(value, " "))
}
