// Package digest groups the last day's active alerts into the per-subscriber
// rollup sent by the daily digest job.
package digest

import (
	"sort"
	"time"

	"hazardwatch/internal/notifications/sms"
	"hazardwatch/internal/types"
)

// maxGroups is the truncation limit for groups in one digest. Anything past it
// is reported through RemainingCount.
const maxGroups = 20

// Group counts active alerts sharing a region, hazard and severity.
type Group struct {
	Region   string           `json:"region"`
	Hazard   types.HazardType `json:"hazard"`
	Severity types.Severity   `json:"severity"`
	Count    int              `json:"count"`
}

// Digest is the grouped view of a set of alerts.
type Digest struct {
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	Total          int       `json:"total"`
	Groups         []Group   `json:"groups"`
	RemainingCount int       `json:"remaining_count,omitempty"`
}

// Build groups alerts by (region, hazard, severity). Groups are ordered by
// region, then most severe first, then hazard.
func Build(alerts []types.Alert, periodStart, periodEnd time.Time) Digest {
	type key struct {
		region   string
		hazard   types.HazardType
		severity types.Severity
	}
	counts := map[key]int{}
	for _, a := range alerts {
		counts[key{a.Region, a.Type, a.Severity}]++
	}

	groups := make([]Group, 0, len(counts))
	for k, n := range counts {
		groups = append(groups, Group{Region: k.region, Hazard: k.hazard, Severity: k.severity, Count: n})
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.Hazard < b.Hazard
	})

	d := Digest{PeriodStart: periodStart, PeriodEnd: periodEnd, Total: len(alerts), Groups: groups}
	if len(d.Groups) > maxGroups {
		d.RemainingCount = len(d.Groups) - maxGroups
		d.Groups = d.Groups[:maxGroups]
	}
	return d
}

// ForSubscriber narrows alerts to the regions sub follows and builds the
// digest from them.
func ForSubscriber(alerts []types.Alert, sub types.Subscriber, periodStart, periodEnd time.Time) Digest {
	var relevant []types.Alert
	for _, a := range alerts {
		if sub.CoversRegion(a.Region) {
			relevant = append(relevant, a)
		}
	}
	return Build(relevant, periodStart, periodEnd)
}

// Render formats the digest as a single SMS in lang.
func (d Digest) Render(lang string) string {
	lines := make([]sms.DigestLine, len(d.Groups))
	for i, g := range d.Groups {
		lines[i] = sms.DigestLine{Region: g.Region, Hazard: g.Hazard, Severity: g.Severity, Count: g.Count}
	}
	return sms.RenderDigest(lang, d.Total, lines)
}
