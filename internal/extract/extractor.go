// Package extract turns free-text agent review output into structured issues.
//
// Agent responses are unconstrained natural language; a strict grammar would
// silently drop valid findings phrased unexpectedly, so the parser optimizes
// for recall on a narrow vocabulary of severity words instead.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hochfrequenz/claude-refine/internal/domain"
)

// ExtractionConfidence is the fixed confidence assigned to every parsed
// issue. The extractor is a heuristic, not a semantic parse, and does not
// claim to assess its own accuracy.
const ExtractionConfidence = 0.8

var (
	// First (leftmost) severity token on a line wins; lines without one
	// are not findings.
	severityRegex = regexp.MustCompile(`(?i)\b(critical|high|medium|low|info)\b`)

	// file.ext or file.ext:line, e.g. app.py:42, internal/loop/loop.go
	locationRegex = regexp.MustCompile(`[A-Za-z0-9_./\\-]+\.(?:go|py|js|jsx|ts|tsx|java|rb|rs|c|h|cc|cpp|hpp|cs|php|swift|kt|scala|sql|sh|bash|yaml|yml|json|toml|xml|html|css|md)(?::\d+)?`)
)

// Parse scans raw agent output line by line and returns the issues it
// finds, in input order. Lines without a severity token are discarded;
// that is not an error, absence of a marker means "not a finding".
func Parse(raw, category string) []domain.Issue {
	var issues []domain.Issue

	for _, line := range strings.Split(raw, "\n") {
		issue, ok := parseLine(line, category)
		if !ok {
			continue
		}
		issues = append(issues, issue)
	}

	return issues
}

func parseLine(line, category string) (domain.Issue, bool) {
	loc := severityRegex.FindStringIndex(line)
	if loc == nil {
		return domain.Issue{}, false
	}

	severity, ok := domain.ParseSeverity(line[loc[0]:loc[1]])
	if !ok {
		return domain.Issue{}, false
	}

	description := strings.TrimLeft(line[loc[1]:], " \t:->.,*)]")
	if len(description) > domain.MaxDescriptionLen {
		// Back off to a rune boundary so the cap never splits a
		// multibyte character.
		cut := domain.MaxDescriptionLen
		for cut > 0 && !utf8.RuneStart(description[cut]) {
			cut--
		}
		description = description[:cut]
	}
	if description == "" {
		return domain.Issue{}, false
	}

	location := locationRegex.FindString(line)
	if location == "" {
		location = "unknown"
	}

	return domain.Issue{
		Severity:    severity,
		Category:    category,
		Location:    location,
		Description: description,
		AutoFixable: severity == domain.SeverityHigh || severity == domain.SeverityMedium,
		Confidence:  ExtractionConfidence,
	}, true
}
