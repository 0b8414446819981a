package domain

import "time"

// Aggregates summarizes the whole record store.
type Aggregates struct {
	Total                int                         `json:"total"`
	ByOutcome            map[Outcome]int             `json:"by_outcome"`
	ByInstitution        map[string]InstitutionStats `json:"by_institution"`
	ByTerm               map[string]TermStats        `json:"by_term"`
	AvgGPA               *float64                    `json:"avg_gpa"`
	AvgGRE               *float64                    `json:"avg_gre"`
	AvgGREVerbal         *float64                    `json:"avg_gre_v"`
	AvgGREWriting        *float64                    `json:"avg_gre_aw"`
	PercentInternational float64                     `json:"percent_international"`
	RejectedMissingGPA   int                         `json:"rejected_missing_gpa"`
	TopInstitution       string                      `json:"top_institution"`
	TopAcceptances       int                         `json:"top_acceptances"`
	ComputedAt           time.Time                   `json:"computed_at"`
}

// InstitutionStats is the per-institution breakdown.
type InstitutionStats struct {
	Applicants     int     `json:"applicants"`
	Accepted       int     `json:"accepted"`
	AcceptanceRate float64 `json:"acceptance_rate"`
}

// TermStats is the per-term breakdown.
type TermStats struct {
	Applicants     int      `json:"applicants"`
	Accepted       int      `json:"accepted"`
	AcceptanceRate float64  `json:"acceptance_rate"`
	AvgGPA         *float64 `json:"avg_gpa"`
	AvgGPAAccepted *float64 `json:"avg_gpa_accepted"`
	AvgGPAAmerican *float64 `json:"avg_gpa_american"`
}
