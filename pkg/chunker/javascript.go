package chunker

import (
	"regexp"
	"strings"
)

// Boundary patterns for JS/TS declarations, checked in order per line.
var jsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^export\s+(?:default\s+)?(?:async\s+)?function\s+\w+`),
	regexp.MustCompile(`^(?:async\s+)?function\s+\w+`),
	regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+\w+\s*=\s*(?:async\s+)?(?:\([^)]*\)|[^=\n])*=>`),
	regexp.MustCompile(`^(?:export\s+(?:default\s+)?)?class\s+\w+`),
}

var jsSymbolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:export\s+(?:default\s+)?)?(?:async\s+)?function\s+(\w+)`),
	regexp.MustCompile(`(?:export\s+)?(?:const|let|var)\s+(\w+)`),
	regexp.MustCompile(`(?:export\s+(?:default\s+)?)?class\s+(\w+)`),
}

// javascriptUnits splits JS/TS by function/class/export boundaries. Each
// unit runs from its boundary line to the line before the next boundary.
func javascriptUnits(content string) []unit {
	lines := strings.Split(content, "\n")

	type boundary struct {
		line   int // 0-indexed
		symbol string
	}
	var boundaries []boundary
	for i, line := range lines {
		for _, p := range jsPatterns {
			if p.MatchString(line) {
				boundaries = append(boundaries, boundary{line: i, symbol: jsSymbol(line)})
				break
			}
		}
	}
	if len(boundaries) == 0 {
		return nil
	}

	var units []unit
	if boundaries[0].line > 0 {
		units = append(units, unit{symbol: "<imports>", start: 1, end: boundaries[0].line})
	}
	for i, b := range boundaries {
		end := len(lines)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].line
		}
		for end > b.line+1 && strings.TrimSpace(lines[end-1]) == "" {
			end--
		}
		units = append(units, unit{symbol: b.symbol, start: b.line + 1, end: end})
	}
	return units
}

func jsSymbol(line string) string {
	for _, p := range jsSymbolPatterns {
		if m := p.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return "<anonymous>"
}
