package advisor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var allocationRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s+(?:in\s+|to\s+)?([A-Za-z][A-Za-z0-9 /&-]*?)(?:,|;|\.|$)`)

// ParseAllocations extracts asset allocations from free text of the form
// "40% stocks, 30% bonds, 20% real estate, 10% cash". Weights are returned
// as fractions keyed by the lowercased asset name.
func ParseAllocations(text string) (map[string]float64, error) {
	matches := allocationRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no allocations found in %q", text)
	}
	out := make(map[string]float64, len(matches))
	for _, m := range matches {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad allocation percentage %q: %w", m[1], err)
		}
		name := strings.ToLower(strings.TrimSpace(m[2]))
		out[name] += pct / 100
	}
	return out, nil
}

// allocationSum totals the parsed weights.
func allocationSum(alloc map[string]float64) float64 {
	total := 0.0
	for _, w := range alloc {
		total += w
	}
	return total
}

// formatAllocations renders allocations in the canonical textual form, in
// descending weight order with ties broken alphabetically.
func formatAllocations(alloc map[string]float64) string {
	type pair struct {
		name   string
		weight float64
	}
	pairs := make([]pair, 0, len(alloc))
	for n, w := range alloc {
		pairs = append(pairs, pair{n, w})
	}
	for i := range pairs {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].weight > pairs[i].weight ||
				(pairs[j].weight == pairs[i].weight && pairs[j].name < pairs[i].name) {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%.0f%% %s", p.weight*100, p.name)
	}
	return strings.Join(parts, ", ")
}
