// Package rules loads the keyword rule file and matches titles against it.
//
// The file is UTF-8 text divided into groups by blank lines. An optional
// [GLOBAL_FILTER] or [WORD_GROUPS] marker line switches the active section.
// Inside a word group every token is either +required, !filter (which also
// joins the shared filter list), @N (per-group result cap) or a normal word.
// A line may carry several comma-separated tokens. Lines starting with # are
// comments.
package rules

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Group is one keyword rule group. A title belongs to the group when every
// Required word is a substring, at least one Normal word is a substring
// (when any are configured) and no group Filter word is a substring.
type Group struct {
	Required []string `json:"required"`
	Normal   []string `json:"normal"`
	Filters  []string `json:"filter_words,omitempty"`
	GroupKey string   `json:"group_key"`
	MaxCount int      `json:"max_count"`
}

const (
	sectionWordGroups   = "WORD_GROUPS"
	sectionGlobalFilter = "GLOBAL_FILTER"
)

// Load reads and parses the rule file. A missing file is not an error: it
// yields empty rules, which makes every title match.
func Load(path string) ([]Group, []string, []string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil, nil
		}
		return nil, nil, nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	groups, filters, globals := Parse(string(content))
	return groups, filters, globals, nil
}

// Parse parses rule file content into word groups, the shared filter list
// and the global filter list.
func Parse(content string) (groups []Group, filterWords, globalFilters []string) {
	section := sectionWordGroups

	for _, block := range strings.Split(content, "\n\n") {
		lines := make([]string, 0, 8)
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}

		if name, ok := sectionMarker(lines[0]); ok {
			section = name
			lines = lines[1:]
		}

		if section == sectionGlobalFilter {
			for _, token := range splitTokens(lines) {
				// The global section takes bare words only.
				if strings.HasPrefix(token, "!") || strings.HasPrefix(token, "+") || strings.HasPrefix(token, "@") {
					continue
				}
				globalFilters = append(globalFilters, token)
			}
			continue
		}

		var g Group
		for _, token := range splitTokens(lines) {
			switch {
			case strings.HasPrefix(token, "@"):
				if n, err := strconv.Atoi(token[1:]); err == nil && n > 0 {
					g.MaxCount = n
				}
			case strings.HasPrefix(token, "!"):
				word := token[1:]
				if word != "" {
					filterWords = append(filterWords, word)
					g.Filters = append(g.Filters, word)
				}
			case strings.HasPrefix(token, "+"):
				if word := token[1:]; word != "" {
					g.Required = append(g.Required, word)
				}
			default:
				g.Normal = append(g.Normal, token)
			}
		}

		if len(g.Required) > 0 || len(g.Normal) > 0 {
			if len(g.Normal) > 0 {
				g.GroupKey = strings.Join(g.Normal, " ")
			} else {
				g.GroupKey = strings.Join(g.Required, " ")
			}
			groups = append(groups, g)
		}
	}

	return groups, filterWords, globalFilters
}

func sectionMarker(line string) (string, bool) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return "", false
	}
	name := strings.ToUpper(line[1 : len(line)-1])
	if name == sectionGlobalFilter || name == sectionWordGroups {
		return name, true
	}
	return "", false
}

func splitTokens(lines []string) []string {
	tokens := make([]string, 0, len(lines))
	for _, line := range lines {
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				tokens = append(tokens, part)
			}
		}
	}
	return tokens
}

// MatchGroupIndex returns the index of the first group that claims the
// title, applying global filters, the shared filter list and per-group
// logic in declared order. It returns -1 when the title is rejected or no
// group matches. With no groups configured every non-empty title matches
// and the index is 0 by convention.
func MatchGroupIndex(title string, groups []Group, filterWords, globalFilters []string) int {
	if strings.TrimSpace(title) == "" {
		return -1
	}
	lower := strings.ToLower(title)

	for _, w := range globalFilters {
		if strings.Contains(lower, strings.ToLower(w)) {
			return -1
		}
	}

	if len(groups) == 0 {
		return 0
	}

	for _, w := range filterWords {
		if strings.Contains(lower, strings.ToLower(w)) {
			return -1
		}
	}

groupLoop:
	for i, g := range groups {
		for _, w := range g.Required {
			if !strings.Contains(lower, strings.ToLower(w)) {
				continue groupLoop
			}
		}
		if len(g.Normal) > 0 {
			found := false
			for _, w := range g.Normal {
				if strings.Contains(lower, strings.ToLower(w)) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		for _, w := range g.Filters {
			if strings.Contains(lower, strings.ToLower(w)) {
				continue groupLoop
			}
		}
		return i
	}

	return -1
}

// Matches reports whether the title survives the filters and matches any
// group (or all titles, when no groups are configured).
func Matches(title string, groups []Group, filterWords, globalFilters []string) bool {
	return MatchGroupIndex(title, groups, filterWords, globalFilters) >= 0
}
