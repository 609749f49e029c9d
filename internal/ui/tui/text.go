package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// truncateText cuts text to width display cells.
func truncateText(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= len(ellipsis) {
		return runewidth.Truncate(text, width, "")
	}
	return runewidth.Truncate(text, width, ellipsis)
}

// wrapText word-wraps text into lines of at most width cells. When the text
// needs more than maxLines lines (maxLines > 0), the last kept line ends in
// an ellipsis. Words longer than width are truncated.
func wrapText(text string, width, maxLines int) []string {
	if width <= 0 {
		return []string{""}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var line string
	for _, word := range words {
		word = truncateText(word, width)
		switch {
		case line == "":
			line = word
		case runewidth.StringWidth(line)+1+runewidth.StringWidth(word) > width:
			lines = append(lines, line)
			line = word
		default:
			line += " " + word
		}
	}
	lines = append(lines, line)

	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
		last := lines[maxLines-1]
		if runewidth.StringWidth(last)+len(ellipsis) <= width {
			lines[maxLines-1] = last + ellipsis
		} else {
			lines[maxLines-1] = runewidth.Truncate(last, width, ellipsis)
		}
	}
	return lines
}

// padLines extends lines with empty lines up to n.
func padLines(lines []string, n int) []string {
	for len(lines) < n {
		lines = append(lines, "")
	}
	return lines
}

// padRight pads text with spaces to width display cells.
func padRight(text string, width int) string {
	return runewidth.FillRight(text, width)
}
