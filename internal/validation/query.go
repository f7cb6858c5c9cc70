package validation

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mbd888/agentdex/internal/agent"
	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/listing"
	"github.com/mbd888/agentdex/internal/pagination"
	"github.com/mbd888/agentdex/internal/reputation"
)

// ParseListRequest reads chain and refresh. An empty chain selects def.
func ParseListRequest(values url.Values, def chain.ID) (listing.Request, error) {
	var errs ValidationErrors
	req := listing.Request{Chain: parseChain(values, def, &errs)}
	req.ForceRefresh = parseBool(values, "refresh", &errs)
	if len(errs) > 0 {
		return listing.Request{}, errs
	}
	return req, nil
}

// ParseSearchQuery reads every search parameter. All problems are
// reported together.
func ParseSearchQuery(values url.Values, def chain.ID) (listing.Query, error) {
	var errs ValidationErrors
	q := listing.DefaultQuery(parseChain(values, def, &errs))

	q.ForceRefresh = parseBool(values, "refresh", &errs)
	q.Text = SanitizeString(values.Get("q"), MaxStringLength)
	q.Network = SanitizeString(values.Get("network"), MaxStringLength)
	q.Capabilities = parseList(values, "capabilities", &errs)
	q.MinTrust = parseScore(values, "minTrust", reputation.MinScore, &errs)
	q.MaxTrust = parseScore(values, "maxTrust", reputation.MaxScore, &errs)
	if q.MinTrust > q.MaxTrust {
		errs = append(errs, ValidationError{Field: "minTrust", Message: "must not exceed maxTrust"})
	}
	q.EliteOnly = parseBool(values, "elite", &errs)
	q.FeaturedOnly = parseBool(values, "featured", &errs)
	q.X402Only = parseBool(values, "x402", &errs)

	sort, err := agent.ParseSortKey(SanitizeString(values.Get("sort"), MaxStringLength))
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   "sort",
			Message: fmt.Sprintf("must be one of %s", joinSortKeys()),
		})
	}
	q.Sort = sort

	q.Limit = parseLimit(values, &errs)
	if raw := strings.TrimSpace(values.Get("cursor")); raw != "" {
		cur, err := pagination.Decode(raw)
		if err != nil {
			errs = append(errs, ValidationError{Field: "cursor", Message: "is not a valid cursor"})
		}
		q.After = cur
	}

	if len(errs) > 0 {
		return listing.Query{}, errs
	}
	return q, nil
}

// ParseAgentIDs reads a comma-separated id list, as used by compare.
func ParseAgentIDs(raw string, max int) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" || seen[id] {
			continue
		}
		if !IsValidAgentID(id) {
			return nil, ValidationErrors{{Field: "ids", Message: fmt.Sprintf("%q is not a valid agent id", SanitizeString(id, MaxStringLength))}}
		}
		seen[id] = true
		ids = append(ids, id)
	}
	switch {
	case len(ids) == 0:
		return nil, ValidationErrors{{Field: "ids", Message: "is required"}}
	case len(ids) > max:
		return nil, ValidationErrors{{Field: "ids", Message: fmt.Sprintf("at most %d agents can be compared", max)}}
	}
	return ids, nil
}

func parseChain(values url.Values, def chain.ID, errs *ValidationErrors) chain.ID {
	raw := SanitizeString(values.Get("chain"), MaxStringLength)
	if raw == "" {
		return def
	}
	id, err := chain.Parse(raw)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: "chain", Message: fmt.Sprintf("unsupported chain %q", raw)})
		return def
	}
	return id
}

func parseBool(values url.Values, field string, errs *ValidationErrors) bool {
	switch strings.ToLower(strings.TrimSpace(values.Get(field))) {
	case "", "false", "0":
		return false
	case "true", "1":
		return true
	default:
		*errs = append(*errs, ValidationError{Field: field, Message: "must be true, false, 1 or 0"})
		return false
	}
}

func parseScore(values url.Values, field string, def int, errs *ValidationErrors) int {
	raw := strings.TrimSpace(values.Get(field))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < reputation.MinScore || n > reputation.MaxScore {
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be an integer between %d and %d", reputation.MinScore, reputation.MaxScore),
		})
		return def
	}
	return n
}

// parseLimit reads the page size. Absent means no paging.
func parseLimit(values url.Values, errs *ValidationErrors) int {
	raw := strings.TrimSpace(values.Get("limit"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > MaxPageSize {
		*errs = append(*errs, ValidationError{
			Field:   "limit",
			Message: fmt.Sprintf("must be an integer between 1 and %d", MaxPageSize),
		})
		return 0
	}
	return n
}

// parseList accepts both repeated parameters and comma-separated values.
func parseList(values url.Values, field string, errs *ValidationErrors) []string {
	var out []string
	for _, v := range values[field] {
		for _, part := range strings.Split(v, ",") {
			if s := SanitizeString(part, MaxStringLength); s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) > MaxListItems {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("at most %d values allowed", MaxListItems)})
		return nil
	}
	return out
}

func joinSortKeys() string {
	keys := make([]string, len(agent.SortKeys))
	for i, k := range agent.SortKeys {
		keys[i] = string(k)
	}
	return strings.Join(keys, ", ")
}
