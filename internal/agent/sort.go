package agent

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// SortKey orders a record list.
type SortKey string

const (
	SortTrustDesc    SortKey = "trust-desc"
	SortTrustAsc     SortKey = "trust-asc"
	SortNameAsc      SortKey = "name-asc"
	SortNameDesc     SortKey = "name-desc"
	SortFeedbackDesc SortKey = "feedback-desc"
)

// SortKeys lists the accepted keys.
var SortKeys = []SortKey{SortTrustDesc, SortTrustAsc, SortNameAsc, SortNameDesc, SortFeedbackDesc}

// ParseSortKey validates s. An empty string selects SortTrustDesc.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return SortTrustDesc, nil
	}
	for _, k := range SortKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort %q", s)
}

// Sort orders records in place by key. Equal elements keep their order.
func Sort(records []Record, key SortKey) {
	var fn func(a, b Record) int
	switch key {
	case SortTrustAsc:
		fn = func(a, b Record) int { return cmp.Compare(a.TrustScore, b.TrustScore) }
	case SortNameAsc:
		fn = func(a, b Record) int { return compareNames(a.Name, b.Name) }
	case SortNameDesc:
		fn = func(a, b Record) int { return compareNames(b.Name, a.Name) }
	case SortFeedbackDesc:
		fn = func(a, b Record) int { return cmp.Compare(b.FeedbackCount, a.FeedbackCount) }
	default:
		fn = func(a, b Record) int { return cmp.Compare(b.TrustScore, a.TrustScore) }
	}
	slices.SortStableFunc(records, fn)
}

// SortByTrust is the listing order: trust score descending, ties in input order.
func SortByTrust(records []Record) {
	Sort(records, SortTrustDesc)
}

func compareNames(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
