package search

import (
	"strings"

	"github.com/rubiojr/statsgrid/pkg/core"
)

// FormatInvalidValues lists the invalid values in requested order (sorted),
// collapsing runs of three or more adjacent invalid values to "start - end".
func FormatInvalidValues(invalid, requested []core.Value) string {
	all := core.CloneValues(requested)
	core.SortValues(all)

	var parts []string
	var start, end core.Value
	run := 0

	flush := func() {
		switch {
		case run == 0:
		case run >= 3:
			parts = append(parts, start.String()+" - "+end.String())
		default:
			parts = append(parts, start.String())
			if start != end {
				parts = append(parts, end.String())
			}
		}
		run = 0
	}

	for _, v := range all {
		if !core.ContainsValue(invalid, v) {
			flush()
			continue
		}
		if run == 0 {
			start = v
		}
		end = v
		run++
	}
	flush()

	return strings.Join(parts, ", ")
}
