package audit

import (
	"fmt"
	"sort"
)

// Registry holds an ordered rule catalogue. It is populated once at start-up
// and read concurrently afterwards.
type Registry struct {
	rules  []RuleDef
	byID   map[string]int
	byName map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]int),
		byName: make(map[string]int),
	}
}

// Register adds rules in order. IDs and names must be unique.
func (r *Registry) Register(rules ...RuleDef) error {
	for _, rule := range rules {
		if rule.ID == "" || rule.Name == "" {
			return fmt.Errorf("rule must have an id and a name: %+v", rule.Info())
		}
		if _, dup := r.byID[rule.ID]; dup {
			return fmt.Errorf("duplicate rule id %s", rule.ID)
		}
		if _, dup := r.byName[rule.Name]; dup {
			return fmt.Errorf("duplicate rule name %s", rule.Name)
		}
		r.byID[rule.ID] = len(r.rules)
		r.byName[rule.Name] = len(r.rules)
		r.rules = append(r.rules, rule)
	}
	return nil
}

// MustRegister is Register for static catalogues.
func (r *Registry) MustRegister(rules ...RuleDef) *Registry {
	if err := r.Register(rules...); err != nil {
		panic(err)
	}
	return r
}

// All returns rules in registration order.
func (r *Registry) All() []RuleDef {
	return append([]RuleDef(nil), r.rules...)
}

// Len returns the number of rules.
func (r *Registry) Len() int { return len(r.rules) }

// Lookup finds a rule by ID or name.
func (r *Registry) Lookup(key string) (RuleDef, bool) {
	if i, ok := r.byID[key]; ok {
		return r.rules[i], true
	}
	if i, ok := r.byName[key]; ok {
		return r.rules[i], true
	}
	return RuleDef{}, false
}

// ByGroup returns the rules of one group in registration order.
func (r *Registry) ByGroup(group string) []RuleDef {
	return r.Filter(func(rule RuleDef) bool { return rule.Group == group })
}

// ByFileType returns the rules targeting one file type.
func (r *Registry) ByFileType(fileType string) []RuleDef {
	return r.Filter(func(rule RuleDef) bool { return rule.FileType == fileType })
}

// Filter returns the rules matching keep.
func (r *Registry) Filter(keep func(RuleDef) bool) []RuleDef {
	var out []RuleDef
	for _, rule := range r.rules {
		if keep(rule) {
			out = append(out, rule)
		}
	}
	return out
}

// Select resolves a list of IDs or names. Unknown keys are returned as an
// error listing all of them.
func (r *Registry) Select(keys ...string) ([]RuleDef, error) {
	var (
		out     []RuleDef
		unknown []string
	)
	seen := make(map[string]bool)
	for _, k := range keys {
		rule, ok := r.Lookup(k)
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		if !seen[rule.ID] {
			seen[rule.ID] = true
			out = append(out, rule)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown rules: %v", unknown)
	}
	return out, nil
}

// Groups returns the distinct groups in sorted order.
func (r *Registry) Groups() []string {
	set := make(map[string]struct{})
	for _, rule := range r.rules {
		set[rule.Group] = struct{}{}
	}
	groups := make([]string, 0, len(set))
	for g := range set {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Infos returns metadata for every rule.
func (r *Registry) Infos() []RuleInfo {
	infos := make([]RuleInfo, len(r.rules))
	for i, rule := range r.rules {
		infos[i] = rule.Info()
	}
	return infos
}
