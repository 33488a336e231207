package main

import (
	"fmt"
	"strings"

	"github.com/genai-analyzer/demo/internal/export"
	"github.com/genai-analyzer/demo/internal/models"
)

// parseMode accepts a mode name or its backend code, in any case.
func parseMode(s string) (models.Mode, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for _, m := range models.Modes {
		if strings.ToLower(string(m)) == want || string(m.API()) == want {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q (want analyze, describe, summarize or all)", s)
}

// parseRole maps known personas and their codes; anything else is kept as a
// free-text persona.
func parseRole(s string) (models.Role, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", fmt.Errorf("role must not be empty")
	}
	want := strings.ToLower(trimmed)
	for _, r := range models.Roles {
		if strings.ToLower(string(r)) == want || string(r.API()) == want {
			return r, nil
		}
	}
	return models.Role(trimmed), nil
}

func parseProgressStyle(s string) (models.ProgressStyle, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for _, p := range models.ProgressStyles {
		if strings.ToLower(string(p)) == want {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown progress style %q (want bar, spinner, simple or none)", s)
}

// parseFormats splits a comma separated export list, dropping duplicates.
func parseFormats(list []string) ([]export.Format, error) {
	var out []export.Format
	seen := make(map[export.Format]bool)
	for _, item := range list {
		for _, name := range strings.Split(item, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			f, err := export.ParseFormat(name)
			if err != nil {
				return nil, err
			}
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out, nil
}
