package detector

// NewPerformanceCheck returns the performance pass. It ships without rules;
// callers add LineRules of kind performance through WithPerformanceRules.
func NewPerformanceCheck(tree SourceTree, rules []LineRule) *LineRuleCheck {
	return NewLineRuleCheck("performance", tree, rules)
}
