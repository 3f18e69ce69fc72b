package adapter

import (
	"fmt"
	"slices"
	"strings"
)

// KnownOutcomes lists every outcome a session reports.
var KnownOutcomes = []string{OutcomeSuccess, OutcomeRemoteError, OutcomeTransportError, OutcomeClientError}

// Outcomes selects which query outcomes an adapter publishes.
// An empty set selects all of them.
type Outcomes []string

// ParseOutcomes validates names against KnownOutcomes.
func ParseOutcomes(names []string) (Outcomes, error) {
	for _, n := range names {
		if !slices.Contains(KnownOutcomes, n) {
			return nil, fmt.Errorf("unknown outcome %q (want one of %s)", n, strings.Join(KnownOutcomes, ", "))
		}
	}
	return Outcomes(names), nil
}

// Match reports whether events with outcome should be published.
func (o Outcomes) Match(outcome string) bool {
	return len(o) == 0 || slices.Contains(o, outcome)
}

// Placeholders accepted by Expand.
const (
	PlaceholderBucket  = "{bucket}"
	PlaceholderFile    = "{file}"
	PlaceholderOutcome = "{outcome}"
	PlaceholderSession = "{session_id}"
)

// Expand fills the placeholders in template from e. Each value passes
// through escape first; a nil escape inserts values verbatim.
//
//	Expand("erldb:{bucket}:{outcome}", e, nil) // "erldb:default:success"
func Expand(template string, e *QueryCompletedEvent, escape func(string) string) string {
	if !strings.Contains(template, "{") {
		return template
	}
	if escape == nil {
		escape = func(s string) string { return s }
	}
	return strings.NewReplacer(
		PlaceholderBucket, escape(e.Bucket),
		PlaceholderFile, escape(e.File),
		PlaceholderOutcome, escape(e.Outcome),
		PlaceholderSession, escape(e.SessionID),
	).Replace(template)
}
