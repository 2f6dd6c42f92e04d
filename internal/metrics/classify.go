package metrics

import (
	"strconv"
	"strings"

	"github.com/kuroyamii/playwright-stress-test/internal/probe"
)

const unknownError = "Unknown Error"

// Rule labels failure messages that satisfy Match.
type Rule struct {
	Label string
	Match func(message string) bool
}

// Contains returns a Rule matching messages containing substr. Matching is
// case-sensitive.
func Contains(substr, label string) Rule {
	return Rule{
		Label: label,
		Match: func(message string) bool { return strings.Contains(message, substr) },
	}
}

// DefaultRules is the ordered rule list used when classifying failures. The
// first matching rule wins.
var DefaultRules = []Rule{
	Contains("timeout", "Timeout"),
	Contains("net::", "Network Error"),
	Contains("SSL", "SSL Error"),
	Contains("Navigation", "Navigation Error"),
}

// IsSuccess reports whether an outcome counts as a successful visit.
func IsSuccess(o probe.Outcome) bool {
	return o.Success && o.StatusCode < 400
}

// Classify returns the error type of a failed outcome.
func Classify(o probe.Outcome, rules []Rule) string {
	if o.HasStatus() {
		return "HTTP " + strconv.Itoa(o.StatusCode)
	}
	msg := o.ErrorMessage
	if msg == "" {
		return unknownError
	}
	for _, r := range rules {
		if r.Match != nil && r.Match(msg) {
			return r.Label
		}
	}
	head, _, _ := strings.Cut(msg, ":")
	if head = strings.TrimSpace(head); head != "" {
		return head
	}
	return unknownError
}

// failureMessage returns the message recorded in error examples.
func failureMessage(o probe.Outcome) string {
	if o.ErrorMessage != "" {
		return o.ErrorMessage
	}
	if o.HasStatus() {
		return "HTTP " + strconv.Itoa(o.StatusCode)
	}
	return unknownError
}
