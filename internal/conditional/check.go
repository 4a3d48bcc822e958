package conditional

import (
	"fmt"
	"strings"

	"github.com/marcus/formsync/internal/models"
)

// IssueCode classifies a problem found by Check
type IssueCode string

const (
	IssueSelfReference     IssueCode = "self_reference"
	IssueDanglingReference IssueCode = "dangling_reference"
	IssueIneligibleSource  IssueCode = "ineligible_source"
	IssueUnknownOperator   IssueCode = "unknown_operator"
	IssueCycle             IssueCode = "cycle"
)

// Issue is one diagnostic about a form's conditional rules.
type Issue struct {
	Code    IssueCode `json:"code"`
	FieldID string    `json:"field_id"`
	Message string    `json:"message"`
	Cycle   []string  `json:"cycle,omitempty"`
}

// Check inspects the rules of a field list without evaluating them. None of
// the reported issues stop a form from being saved or filled; they explain
// why a field may never show up, or always does.
func Check(fields []models.Field) []Issue {
	byID := make(map[string]models.Field, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}

	var issues []Issue
	for _, f := range fields {
		rule := f.Rule()
		if rule == nil {
			continue
		}
		if !rule.Operator.IsValid() {
			issues = append(issues, Issue{
				Code:    IssueUnknownOperator,
				FieldID: f.ID,
				Message: fmt.Sprintf("%q uses unknown operator %q and is always shown", f.Label, rule.Operator),
			})
		}
		if rule.FieldID == f.ID {
			issues = append(issues, Issue{
				Code:    IssueSelfReference,
				FieldID: f.ID,
				Message: fmt.Sprintf("%q depends on its own value", f.Label),
			})
			continue
		}
		src, ok := byID[rule.FieldID]
		if !ok {
			issues = append(issues, Issue{
				Code:    IssueDanglingReference,
				FieldID: f.ID,
				Message: fmt.Sprintf("%q depends on missing field %q", f.Label, rule.FieldID),
			})
			continue
		}
		if !IsReferenceType(src.Type) {
			issues = append(issues, Issue{
				Code:    IssueIneligibleSource,
				FieldID: f.ID,
				Message: fmt.Sprintf("%q depends on %q, a %s field", f.Label, src.Label, src.Type),
			})
		}
	}

	for _, cycle := range FindCycles(fields) {
		if len(cycle) < 2 {
			continue // reported as self_reference
		}
		issues = append(issues, Issue{
			Code:    IssueCycle,
			FieldID: cycle[0],
			Message: "fields depend on each other: " + strings.Join(cycle, " -> "),
			Cycle:   cycle,
		})
	}
	return issues
}

// FindCycles returns every cycle of show-if references, each as the list of
// field IDs in dependency order. A field has at most one rule, so every cycle
// is simple and each field belongs to at most one cycle.
func FindCycles(fields []models.Field) [][]string {
	next := make(map[string]string, len(fields))
	for _, f := range fields {
		if rule := f.Rule(); rule != nil {
			next[f.ID] = rule.FieldID
		}
	}

	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(fields))

	var cycles [][]string
	for _, f := range fields {
		if state[f.ID] != unvisited {
			continue
		}
		var path []string
		id := f.ID
		for {
			if state[id] == done {
				break
			}
			if state[id] == onPath {
				for i, p := range path {
					if p == id {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
				break
			}
			state[id] = onPath
			path = append(path, id)
			to, ok := next[id]
			if !ok {
				break
			}
			id = to
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return cycles
}
