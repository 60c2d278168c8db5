// Package redact scrubs sensitive values from outgoing prompt text and
// restores them in the response.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// pattern is one detector with its placeholder label.
type pattern struct {
	name  string
	re    *regexp.Regexp
	label string
	// group selects the submatch to replace; 0 means the whole match.
	group int
}

// High-priority detectors run first so a bearer token is labelled as such
// before the URL detector sees the line containing it.
var patterns = []pattern{
	{
		name:  "bearer token",
		re:    regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9_\-\.]{20,})`),
		label: "TOKEN",
		group: 1,
	},
	{
		name:  "api key",
		re:    regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|access[_-]?key|secret[_-]?key)[\s:=]+([a-zA-Z0-9_\-]{20,})`),
		label: "API_KEY",
		group: 1,
	},
	{
		name:  "url with credentials",
		re:    regexp.MustCompile(`https?://[^:/\s]+:[^@\s]+@[^\s)"'<>]+`),
		label: "URL_WITH_AUTH",
	},
	{
		name:  "password assignment",
		re:    regexp.MustCompile(`(?i)(?:password|passwd|pwd)[\s:=]+([^\s,)"']+)`),
		label: "PASSWORD",
		group: 1,
	},
	{
		name:  "email",
		re:    regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`),
		label: "EMAIL",
	},
	{
		name:  "ipv4",
		re:    regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`),
		label: "IP",
	},
}

// Scrubber replaces sensitive values with numbered placeholders and keeps
// the mapping so they can be restored from a model response. The same
// value always maps to the same placeholder within one scrubber.
type Scrubber struct {
	mu       sync.Mutex
	byValue  map[string]string // original -> placeholder
	byHolder map[string]string // placeholder -> original
	counters map[string]int
}

// NewScrubber creates an empty scrubber.
func NewScrubber() *Scrubber {
	return &Scrubber{
		byValue:  make(map[string]string),
		byHolder: make(map[string]string),
		counters: make(map[string]int),
	}
}

// Scrub replaces every detected sensitive value in text with a placeholder
// like [EMAIL-1].
func (s *Scrubber) Scrub(text string) string {
	if text == "" {
		return text
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range patterns {
		text = p.re.ReplaceAllStringFunc(text, func(match string) string {
			value := match
			if p.group > 0 {
				if sub := p.re.FindStringSubmatch(match); len(sub) > p.group {
					value = sub[p.group]
				}
			}
			return strings.Replace(match, value, s.placeholderLocked(p.label, value), 1)
		})
	}
	return text
}

// Restore substitutes known placeholders in text back to their original
// values. Longer placeholders are replaced first so [EMAIL-10] is never
// clobbered by [EMAIL-1].
func (s *Scrubber) Restore(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	holders := make([]string, 0, len(s.byHolder))
	for h := range s.byHolder {
		holders = append(holders, h)
	}
	sort.Slice(holders, func(i, j int) bool { return len(holders[i]) > len(holders[j]) })

	for _, h := range holders {
		text = strings.ReplaceAll(text, h, s.byHolder[h])
	}
	return text
}

// Count returns how many distinct values are currently mapped.
func (s *Scrubber) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byValue)
}

func (s *Scrubber) placeholderLocked(label, value string) string {
	if h, ok := s.byValue[value]; ok {
		return h
	}
	s.counters[label]++
	h := fmt.Sprintf("[%s-%d]", label, s.counters[label])
	s.byValue[value] = h
	s.byHolder[h] = value
	return h
}
