package config

import (
	"fmt"
	"strings"

	"buildrecorder/internal/types"
)

const (
	runParamSeparator   = ";"
	issueSeparator      = ","
	issueFieldSeparator = ">>"
)

// RunParameter is a single configured run parameter.
type RunParameter struct {
	Key   string
	Value string
}

// RunParameters is an ordered list of run parameters. It implements
// envconfig.Decoder so the configured order survives decoding.
type RunParameters []RunParameter

// Decode parses "key=value;key2=value2". Each entry is split at its first "=",
// so values may contain "=". An entry without "=" has an empty value. Blank
// entries are skipped; keys are neither validated nor deduplicated.
func (p *RunParameters) Decode(value string) error {
	var params RunParameters
	for _, entry := range strings.Split(value, runParamSeparator) {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		key, val, _ := strings.Cut(entry, "=")
		params = append(params, RunParameter{
			Key:   strings.TrimSpace(key),
			Value: val,
		})
	}
	*p = params
	return nil
}

// AffectedIssues is the configured set of issues affected by a build, unique
// by key in first-seen order. It implements envconfig.Decoder.
type AffectedIssues []types.Issue

// Decode parses "KEY>>URL>>SUMMARY" entries separated by ",". URL and summary
// are optional; a repeated key keeps its first occurrence.
func (a *AffectedIssues) Decode(value string) error {
	var issues AffectedIssues
	seen := make(map[string]bool)
	for _, entry := range strings.Split(value, issueSeparator) {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		parts := strings.Split(entry, issueFieldSeparator)
		if len(parts) > 3 {
			return fmt.Errorf("affected issue %q: expected KEY>>URL>>SUMMARY", entry)
		}
		issue := types.Issue{Key: strings.TrimSpace(parts[0])}
		if issue.Key == "" {
			return fmt.Errorf("affected issue %q: missing key", entry)
		}
		if len(parts) > 1 {
			issue.URL = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			issue.Summary = strings.TrimSpace(parts[2])
		}
		if seen[issue.Key] {
			continue
		}
		seen[issue.Key] = true
		issues = append(issues, issue)
	}
	*a = issues
	return nil
}

