package compose

import "github.com/riverwatch/riverwatch/internal/model"

// ActionRule is one row of the suggested-actions table. Preconditions are
// evaluated independently; every matching rule's action is included, in
// the table's declared order (spec.md §4.7).
type ActionRule struct {
	Action    string
	Precondition func(kind model.SourceKind, priority model.Priority, permits []model.Permit, rainfall model.RainfallSummary) bool
}

// actionRules is the static, ordered rule table.
var actionRules = []ActionRule{
	{
		Action: "Issue a high-priority flood warning to downstream residents",
		Precondition: func(kind model.SourceKind, priority model.Priority, permits []model.Permit, rainfall model.RainfallSummary) bool {
			return priority == model.PriorityHigh && (kind == model.SourceKindFlood || kind == model.SourceKindMixed)
		},
	},
	{
		Action: "Dispatch a field crew to verify gauge readings",
		Precondition: func(kind model.SourceKind, priority model.Priority, permits []model.Permit, rainfall model.RainfallSummary) bool {
			return priority == model.PriorityHigh || priority == model.PriorityMedium
		},
	},
	{
		Action: "Review nearby discharge permits for compliance",
		Precondition: func(kind model.SourceKind, priority model.Priority, permits []model.Permit, rainfall model.RainfallSummary) bool {
			return hasCategory(permits, model.PermitDischarge)
		},
	},
	{
		Action: "Check waste-site containment near the affected reach",
		Precondition: func(kind model.SourceKind, priority model.Priority, permits []model.Permit, rainfall model.RainfallSummary) bool {
			return hasCategory(permits, model.PermitWaste)
		},
	},
	{
		Action: "Cross-check flood-risk permits for compounding activity",
		Precondition: func(kind model.SourceKind, priority model.Priority, permits []model.Permit, rainfall model.RainfallSummary) bool {
			return hasCategory(permits, model.PermitFloodRisk)
		},
	},
	{
		Action: "Correlate with upstream rainfall accumulation before escalating",
		Precondition: func(kind model.SourceKind, priority model.Priority, permits []model.Permit, rainfall model.RainfallSummary) bool {
			return rainfall.Category == model.RainfallHeavy || rainfall.Category == model.RainfallModerate
		},
	},
	{
		Action: "Log for routine review; no immediate rainfall or permit correlation found",
		Precondition: func(kind model.SourceKind, priority model.Priority, permits []model.Permit, rainfall model.RainfallSummary) bool {
			return priority == model.PriorityLow && rainfall.Category == model.RainfallNone && len(permits) == 0
		},
	},
}

func hasCategory(permits []model.Permit, category model.PermitCategory) bool {
	for _, p := range permits {
		if p.Category == category {
			return true
		}
	}
	return false
}

// SuggestedActions evaluates every rule's precondition and returns the
// actions of those that match, preserving table order.
func SuggestedActions(kind model.SourceKind, priority model.Priority, permits []model.Permit, rainfall model.RainfallSummary) []string {
	var actions []string
	for _, rule := range actionRules {
		if rule.Precondition(kind, priority, permits, rainfall) {
			actions = append(actions, rule.Action)
		}
	}
	return actions
}
