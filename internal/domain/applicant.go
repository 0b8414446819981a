package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-day rendering used in composite keys and storage.
const DateLayout = "2006-01-02"

// Outcome enumerates admission decisions reported upstream.
type Outcome string

const (
	OutcomeAccepted   Outcome = "Accepted"
	OutcomeRejected   Outcome = "Rejected"
	OutcomeWaitlisted Outcome = "Wait listed"
	OutcomeInterview  Outcome = "Interview"
	OutcomeWithdrawn  Outcome = "Withdrawn"
	OutcomeOther      Outcome = "Other"
)

// ParseOutcome maps decision text onto a known outcome.
func ParseOutcome(value string) Outcome {
	switch strings.ToLower(strings.Join(strings.Fields(value), "")) {
	case "accepted":
		return OutcomeAccepted
	case "rejected":
		return OutcomeRejected
	case "waitlisted":
		return OutcomeWaitlisted
	case "interview":
		return OutcomeInterview
	case "withdrawn":
		return OutcomeWithdrawn
	default:
		return OutcomeOther
	}
}

// RawEntry is one survey row as scraped, before cleaning.
type RawEntry struct {
	University string `json:"university"`
	Program    string `json:"program"`
	DateAdded  string `json:"date_added"`
	Decision   string `json:"decision"`
	Text       string `json:"text"`
	EntryURL   string `json:"entry_url,omitempty"`
	PageURL    string `json:"url,omitempty"`
	Page       int    `json:"page,omitempty"`
}

// RecordKey is the composite natural key of an applicant record.
type RecordKey struct {
	Institution    string
	Program        string
	DecisionDate   string
	ApplicantStats string
}

func (k RecordKey) String() string {
	return strings.Join([]string{k.Institution, k.Program, k.DecisionDate, k.ApplicantStats}, " / ")
}

// Less orders keys lexicographically field by field.
func (k RecordKey) Less(other RecordKey) bool {
	if k.Institution != other.Institution {
		return k.Institution < other.Institution
	}
	if k.Program != other.Program {
		return k.Program < other.Program
	}
	if k.DecisionDate != other.DecisionDate {
		return k.DecisionDate < other.DecisionDate
	}
	return k.ApplicantStats < other.ApplicantStats
}

// ApplicantRecord is one observed admission outcome report.
type ApplicantRecord struct {
	ID            int64
	Institution   string
	Program       string
	DecisionDate  time.Time
	Outcome       Outcome
	Term          string
	Citizenship   string
	Degree        string
	GPA           *float64
	GRE           *float64
	GREVerbal     *float64
	GREWriting    *float64
	Comment       string
	SourceURL     string
	DateAdded     string
	LLMProgram    string
	LLMUniversity string
	IngestedAt    time.Time
	UpdatedAt     time.Time
}

// Key derives the composite natural key.
func (r ApplicantRecord) Key() RecordKey {
	return RecordKey{
		Institution:    r.Institution,
		Program:        r.Program,
		DecisionDate:   r.DecisionDate.Format(DateLayout),
		ApplicantStats: r.ApplicantStats(),
	}
}

// ApplicantStats encodes degree, scores and term as degree|gpa|gre|gre_v|gre_aw|term.
// Scores keep their usual precision unless that would lose digits.
func (r ApplicantRecord) ApplicantStats() string {
	parts := []string{
		orDash(r.Degree),
		formatScore(r.GPA, 2),
		formatScore(r.GRE, 0),
		formatScore(r.GREVerbal, 0),
		formatScore(r.GREWriting, 1),
		orDash(r.Term),
	}
	return strings.Join(parts, "|")
}

// Merge overlays the non-empty attributes of candidate onto r and reports whether
// anything changed. Key fields are left untouched.
func (r ApplicantRecord) Merge(candidate ApplicantRecord) (ApplicantRecord, bool) {
	merged := r
	changed := false

	setString := func(dst *string, src string) {
		if src != "" && *dst != src {
			*dst = src
			changed = true
		}
	}

	// Other means the decision text was unreadable; it never replaces a known outcome.
	if candidate.Outcome != "" && candidate.Outcome != OutcomeOther && merged.Outcome != candidate.Outcome {
		merged.Outcome = candidate.Outcome
		changed = true
	}
	setString(&merged.Citizenship, candidate.Citizenship)
	setString(&merged.Comment, candidate.Comment)
	setString(&merged.SourceURL, candidate.SourceURL)
	setString(&merged.DateAdded, candidate.DateAdded)
	setString(&merged.LLMProgram, candidate.LLMProgram)
	setString(&merged.LLMUniversity, candidate.LLMUniversity)

	return merged, changed
}

// WithKeyOf copies the natural-key attributes of other onto r.
func (r ApplicantRecord) WithKeyOf(other ApplicantRecord) ApplicantRecord {
	r.Institution = other.Institution
	r.Program = other.Program
	r.DecisionDate = other.DecisionDate
	r.Degree = other.Degree
	r.GPA = other.GPA
	r.GRE = other.GRE
	r.GREVerbal = other.GREVerbal
	r.GREWriting = other.GREWriting
	r.Term = other.Term
	return r
}

// Float returns a pointer to v, for nullable score fields.
func Float(v float64) *float64 {
	return &v
}

func formatScore(v *float64, precision int) string {
	if v == nil {
		return "-"
	}
	s := strconv.FormatFloat(*v, 'f', precision, 64)
	if parsed, err := strconv.ParseFloat(s, 64); err != nil || parsed != *v {
		return strconv.FormatFloat(*v, 'f', -1, 64)
	}
	return s
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

// ProgramRef carries raw and standardized program/university names through enrichment.
type ProgramRef struct {
	Program       string `json:"program"`
	University    string `json:"university"`
	LLMProgram    string `json:"llm-generated-program,omitempty"`
	LLMUniversity string `json:"llm-generated-university,omitempty"`
}

func (p ProgramRef) String() string {
	return fmt.Sprintf("%s - %s", p.University, p.Program)
}
