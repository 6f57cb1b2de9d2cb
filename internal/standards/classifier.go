package standards

import (
	"regexp"
	"strings"
)

// LineKind is the role a single line of import text plays.
type LineKind int

const (
	LineBlank LineKind = iota
	LineIgnored
	LineDomainHeader
	LineStandardEntry
)

func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineDomainHeader:
		return "domain"
	case LineStandardEntry:
		return "standard"
	default:
		return "ignored"
	}
}

// Line is a classified line. Code and Text are set for headers (code, name)
// and standard entries (code, description).
type Line struct {
	Kind LineKind
	Code string
	Text string
}

var (
	// "## Domain: MS-ESS2 - Earth's Systems"
	domainHeaderPattern = regexp.MustCompile(`(?i)^#+\s*Domain:\s*([A-Z0-9-]+)\s*[-–—]\s*(.+)$`)
	// "MS-ESS2-1: Develop a model ..."
	standardEntryPattern = regexp.MustCompile(`(?i)^([A-Z0-9-]+)[:–—-]\s*(.+)$`)

	trailingNumber = regexp.MustCompile(`-\d+$`)
)

// ClassifyLine trims line and decides whether it opens a domain, holds a
// standard, or carries nothing the parser cares about. The domain header is
// tried first.
func ClassifyLine(line string) Line {
	line = strings.TrimSpace(line)
	if line == "" {
		return Line{Kind: LineBlank}
	}

	if m := domainHeaderPattern.FindStringSubmatch(line); m != nil {
		return Line{Kind: LineDomainHeader, Code: m[1], Text: strings.TrimSpace(m[2])}
	}
	if m := standardEntryPattern.FindStringSubmatch(line); m != nil {
		return Line{Kind: LineStandardEntry, Code: m[1], Text: strings.TrimSpace(m[2])}
	}
	return Line{Kind: LineIgnored}
}

// SyntheticDomainCode derives a domain code from a standard code that showed
// up before any header: MS-ESS2-1 becomes MS-ESS2. Codes without a numeric
// suffix are returned unchanged.
func SyntheticDomainCode(standardCode string) string {
	return trailingNumber.ReplaceAllString(standardCode, "")
}
