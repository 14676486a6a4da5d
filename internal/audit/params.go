package audit

import (
	"strconv"
	"strings"
	"time"
)

// Params holds rule options. Values may come from YAML, JSON or flags, so
// the getters accept any numeric representation. Unknown keys are ignored
// and unusable values fall back to the default.
type Params map[string]any

// Common option keys.
const (
	OptSampleLimit = "sample_limit"
)

// Int returns an integer option.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// Float returns a floating point option.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return def
}

// Date returns a YYYYMMDD or YYYY-MM-DD date option, or def.
func (p Params) Date(key string, def time.Time) time.Time {
	switch v := p[key].(type) {
	case time.Time:
		return v
	case int:
		return p.parseDate(strconv.Itoa(v), def)
	case int64:
		return p.parseDate(strconv.FormatInt(v, 10), def)
	case float64:
		return p.parseDate(strconv.FormatInt(int64(v), 10), def)
	case string:
		return p.parseDate(v, def)
	}
	return def
}

func (Params) parseDate(s string, def time.Time) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return def
}

// SampleLimit returns the sample_limit option.
func (p Params) SampleLimit() int {
	n := p.Int(OptSampleLimit, DefaultSampleLimit)
	if n <= 0 {
		return DefaultSampleLimit
	}
	return n
}

// Merge returns a new Params with override applied over p.
func (p Params) Merge(override Params) Params {
	out := make(Params, len(p)+len(override))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
