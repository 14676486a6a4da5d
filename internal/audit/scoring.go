package audit

import (
	"fmt"
	"math"
	"strings"
)

const (
	MaxScore = 100

	// DefaultSampleLimit bounds AffectedIDs per issue.
	DefaultSampleLimit = 100
)

// Thresholds maps a score to a status: at or above Success is success, at
// or above Warning is warning, anything lower is error.
type Thresholds struct {
	Success int
	Warning int
}

// Common cut points. Rules declare which one they use.
var (
	// StrictThresholds treat any deduction as an error.
	StrictThresholds = Thresholds{Success: 100, Warning: 100}
	// DefaultThresholds tolerate small deductions as warnings.
	DefaultThresholds = Thresholds{Success: 100, Warning: 70}
	// AdvisoryThresholds never go past warning for heuristics.
	AdvisoryThresholds = Thresholds{Success: 100, Warning: 0}
)

// Status derives the status for score.
func (th Thresholds) Status(score int) Status {
	switch {
	case score >= th.Success:
		return StatusSuccess
	case score >= th.Warning:
		return StatusWarning
	default:
		return StatusError
	}
}

// Score subtracts penalties from MaxScore and floors at zero.
func Score(penalties ...float64) int {
	s := float64(MaxScore)
	for _, p := range penalties {
		if p > 0 {
			s -= p
		}
	}
	if s <= 0 {
		return 0
	}
	return int(math.Round(s))
}

// Proportional returns weight scaled by count/total, so a rule flagging every
// entity loses the full weight. Any nonzero count costs at least one point.
func Proportional(weight float64, count, total int) float64 {
	if count <= 0 {
		return 0
	}
	if total <= 0 || count >= total {
		return weight
	}
	return math.Max(1, weight*float64(count)/float64(total))
}

// Flat returns weight when count is nonzero.
func Flat(weight float64, count int) float64 {
	if count > 0 {
		return weight
	}
	return 0
}

// Sample returns at most limit ids. A non-positive limit uses
// DefaultSampleLimit.
func Sample(ids []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	if len(ids) <= limit {
		return append([]string{}, ids...)
	}
	return append([]string{}, ids[:limit]...)
}

// SampleMessage formats "n label: a, b, c and k more".
func SampleMessage(label string, ids []string, shown int) string {
	if len(ids) == 0 {
		return fmt.Sprintf("0 %s", label)
	}
	if shown <= 0 || shown > len(ids) {
		shown = len(ids)
	}
	msg := fmt.Sprintf("%d %s: %s", len(ids), label, strings.Join(ids[:shown], ", "))
	if rest := len(ids) - shown; rest > 0 {
		msg += fmt.Sprintf(" and %d more", rest)
	}
	return msg
}
