package diagnostic

import (
	"fmt"
	"sort"

	"github.com/repolens/repolens/internal/model"
)

// Recommend maps a health state, trend, and set of escalated codes to canned
// advice. It is a pure lookup: the same inputs always produce the same
// output, and the three buckets are a partition of one generated list.
func Recommend(health model.HealthState, trend model.Trend, escalatedCodes []string) model.RecommendationSet {
	set := model.RecommendationSet{
		Immediate: []string{},
		ShortTerm: []string{},
		LongTerm:  []string{},
	}

	codes := make([]string, len(escalatedCodes))
	copy(codes, escalatedCodes)
	sort.Strings(codes)

	for _, code := range codes {
		set.Immediate = append(set.Immediate,
			fmt.Sprintf("Manually review classification code %q: it recurred often enough to require follow-up", code))
	}

	switch health {
	case model.HealthEmergency:
		set.Immediate = append(set.Immediate,
			"Critical events recorded in the current window; page the stream owner")
	case model.HealthCritical:
		set.Immediate = append(set.Immediate,
			"Repeated degraded events in the current window; investigate the failing operation")
	case model.HealthDegraded:
		set.ShortTerm = append(set.ShortTerm,
			"Warning volume above normal; review recent warnings for a common cause")
	case model.HealthNormal:
		set.LongTerm = append(set.LongTerm,
			"Stream activity within normal bounds; no action required")
	case model.HealthOptimal:
		set.LongTerm = append(set.LongTerm,
			"No recent events; consider whether this stream is still instrumented")
	}

	switch trend {
	case model.TrendIncreasing:
		set.ShortTerm = append(set.ShortTerm,
			"Error ratio rising window over window; check recent deploys and upstream API status")
	case model.TrendDecreasing:
		set.LongTerm = append(set.LongTerm,
			"Error ratio falling window over window; note what changed for the runbook")
	}

	return set
}
