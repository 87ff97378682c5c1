package chunker

import (
	"regexp"
	"strings"
)

var pythonDefPattern = regexp.MustCompile(`^(?:async\s+)?(def|class)\s+(\w+)`)

// pythonUnits finds top-level def/class blocks by indentation. A block runs
// from its header (including decorators directly above) until the next
// column-zero statement.
func pythonUnits(content string) []unit {
	lines := strings.Split(content, "\n")

	type boundary struct {
		line   int // 0-indexed header line
		symbol string
	}
	var boundaries []boundary
	for i, line := range lines {
		if m := pythonDefPattern.FindStringSubmatch(line); m != nil {
			start := i
			// Pull in decorators stacked directly above the header.
			for start > 0 && strings.HasPrefix(strings.TrimRight(lines[start-1], " \t"), "@") {
				start--
			}
			boundaries = append(boundaries, boundary{line: start, symbol: m[2]})
		}
	}
	if len(boundaries) == 0 {
		return nil
	}

	var units []unit
	if boundaries[0].line > 0 {
		units = append(units, unit{symbol: "<module>", start: 1, end: boundaries[0].line})
	}
	for i, b := range boundaries {
		end := len(lines)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].line
		}
		// Trim trailing blank lines off the block.
		for end > b.line+1 && strings.TrimSpace(lines[end-1]) == "" {
			end--
		}
		units = append(units, unit{symbol: b.symbol, start: b.line + 1, end: end})
	}
	return units
}
