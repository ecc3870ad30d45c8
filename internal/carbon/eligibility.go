package carbon

import "strings"

// EligibilityAnnotation is the workload annotation that opts a replica into
// carbon-aware placement. Recognized values: "enabled", "disabled". Any other
// value, or an absent annotation, means disabled.
const EligibilityAnnotation = "carbon.stellar-k8s.io/eligible"

// ParseEligibility interprets the annotation value. Unset defaults to
// disabled so carbon data can never penalize workloads that did not opt in.
func ParseEligibility(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "enabled")
}

// EligibleFromAnnotations reads the eligibility annotation from a workload's
// annotation map.
func EligibleFromAnnotations(annotations map[string]string) bool {
	return ParseEligibility(annotations[EligibilityAnnotation])
}
