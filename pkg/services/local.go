package services

import (
	"context"
	"strings"

	"BranchChat/pkg/utils"
)

// LocalSummarizer builds an extractive summary from the first lines of the
// conversation. It is used when Gemini is disabled.
type LocalSummarizer struct{}

func (LocalSummarizer) Summarize(_ context.Context, text string) (string, error) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, utils.Truncate(l, 80))
		}
		if len(lines) == 3 {
			break
		}
	}
	if len(lines) == 0 {
		return "No messages yet", nil
	}
	return strings.Join(lines, " | "), nil
}
