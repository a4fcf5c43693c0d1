package firewalllog

import "sort"

// DomainCount tracks per-domain allowed/denied/total request counts.
type DomainCount struct {
	Allowed int
	Denied  int
	Total   int
}

// TimeRange is the [Start, End] span of timestamps in an aggregated stream.
type TimeRange struct {
	Start float64
	End   float64
}

// AggregatedStats is the reduction of a record stream (spec §3, §4.3).
type AggregatedStats struct {
	TotalRequests   int
	AllowedRequests int
	DeniedRequests  int
	ByDomain        map[string]*DomainCount
	TimeRange       *TimeRange
}

// domainSentinel is used for records whose derived domain is empty.
const domainSentinel = "-"

// Aggregate folds a finite sequence of records into an AggregatedStats,
// implementing the invariants of spec §3/§4.3: Total = Allowed + Denied,
// TimeRange is nil iff the input is empty, and domain grouping is
// order-insensitive.
func Aggregate(records []*Record) *AggregatedStats {
	stats := &AggregatedStats{ByDomain: make(map[string]*DomainCount)}

	var minTS, maxTS float64
	first := true

	for _, r := range records {
		if r == nil {
			continue
		}
		stats.TotalRequests++
		if r.IsAllowed {
			stats.AllowedRequests++
		} else {
			stats.DeniedRequests++
		}

		domain := r.Domain
		if domain == "" {
			domain = domainSentinel
		}
		dc, ok := stats.ByDomain[domain]
		if !ok {
			dc = &DomainCount{}
			stats.ByDomain[domain] = dc
		}
		dc.Total++
		if r.IsAllowed {
			dc.Allowed++
		} else {
			dc.Denied++
		}

		if first {
			minTS, maxTS = r.Timestamp, r.Timestamp
			first = false
		} else {
			if r.Timestamp < minTS {
				minTS = r.Timestamp
			}
			if r.Timestamp > maxTS {
				maxTS = r.Timestamp
			}
		}
	}

	if !first {
		stats.TimeRange = &TimeRange{Start: minTS, End: maxTS}
	}

	return stats
}

// UniqueDomains returns the number of distinct domains tracked, including the
// "-" sentinel if present (spec §3: uniqueDomains = |byDomain|).
func (s *AggregatedStats) UniqueDomains() int {
	return len(s.ByDomain)
}

// sortedDomainsByTotalDesc returns domains ordered by descending total
// request count (ties broken alphabetically), optionally excluding the
// sentinel domain.
func (s *AggregatedStats) sortedDomainsByTotalDesc(excludeSentinel bool) []string {
	domains := make([]string, 0, len(s.ByDomain))
	for d := range s.ByDomain {
		if excludeSentinel && d == domainSentinel {
			continue
		}
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool {
		ci, cj := s.ByDomain[domains[i]], s.ByDomain[domains[j]]
		if ci.Total != cj.Total {
			return ci.Total > cj.Total
		}
		return domains[i] < domains[j]
	})
	return domains
}
