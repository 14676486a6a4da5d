// Package audit defines the contract every feed rule satisfies: a pure
// check over an immutable dataset that always returns a Report, plus the
// registry and aggregator that run a catalogue of rules.
package audit

// Status is the severity of a report.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

func (s Status) rank() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusWarning:
		return 1
	default:
		return 2
	}
}

// Worse returns the more severe of two statuses.
func Worse(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// IssueType classifies an issue.
type IssueType string

const (
	IssueMissingFile       IssueType = "missing_file"
	IssueMissingColumn     IssueType = "missing_column"
	IssueMissingReference  IssueType = "missing_reference"
	IssueUnusedData        IssueType = "unused_data"
	IssueDataInconsistency IssueType = "data_inconsistency"
	IssueAnalysisError     IssueType = "analysis_error"
	IssueInvalidFormat     IssueType = "invalid_format"
	IssueMissingData       IssueType = "missing_data"
	IssueDuplicateData     IssueType = "duplicate_data"
	IssueOutOfRange        IssueType = "out_of_range"
)

// Issue is one finding. Count is always the true number of affected
// entities; AffectedIDs may be a capped sample.
type Issue struct {
	Type        IssueType `json:"type"`
	Field       string    `json:"field"`
	Count       int       `json:"count"`
	AffectedIDs []string  `json:"affected_ids"`
	Message     string    `json:"message"`
}

// Explanation is the human-readable rationale attached to a report.
type Explanation struct {
	Purpose string `json:"purpose"`
	Context string `json:"context"`
	Impact  string `json:"impact"`
}

// Report is the output of one rule invocation. Reports hold only plain
// values and never reference the dataset they were computed from.
type Report struct {
	RuleID          string         `json:"rule_id"`
	Rule            string         `json:"rule"`
	FileType        string         `json:"file_type"`
	Status          Status         `json:"status"`
	Score           int            `json:"score"`
	Issues          []Issue        `json:"issues"`
	Result          map[string]any `json:"result"`
	Explanation     Explanation    `json:"explanation"`
	Recommendations []string       `json:"recommendations"`
}

// NewReport returns an empty success report with non-nil collections so
// serialized reports always carry arrays and objects rather than null.
func NewReport(explanation Explanation) Report {
	return Report{
		Status:          StatusSuccess,
		Score:           MaxScore,
		Issues:          []Issue{},
		Result:          map[string]any{},
		Explanation:     explanation,
		Recommendations: []string{},
	}
}

// AddIssue appends an issue with a sampled id list.
func (r *Report) AddIssue(typ IssueType, field string, ids []string, limit int, message string) {
	r.Issues = append(r.Issues, Issue{
		Type:        typ,
		Field:       field,
		Count:       len(ids),
		AffectedIDs: Sample(ids, limit),
		Message:     message,
	})
}

// Recommend appends a remediation hint.
func (r *Report) Recommend(s ...string) {
	r.Recommendations = append(r.Recommendations, s...)
}

// Grade sets score and status together.
func (r *Report) Grade(score int, th Thresholds) {
	r.Score = score
	r.Status = th.Status(score)
}

// HasIssue reports whether the report contains an issue of the given type.
func (r Report) HasIssue(typ IssueType) bool {
	for _, is := range r.Issues {
		if is.Type == typ {
			return true
		}
	}
	return false
}
