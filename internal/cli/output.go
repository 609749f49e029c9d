package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "table",
		Usage:   "Output format: table, json, yaml",
	}
}

// writeStructured prints v as indented JSON or YAML.
func writeStructured(v any, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("invalid format %q", format)
	}
}

// truncate cuts s to width display cells.
func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}

// formatSize renders a byte count in binary units.
func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// parseDuration extends time.ParseDuration with day (d) and week (w) units.
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		if s == "" {
			return 0, errors.New("empty duration")
		}
		return time.ParseDuration(s)
	}

	unit := strings.ToLower(s[len(s)-1:])
	var mult time.Duration
	switch unit {
	case "d":
		mult = 24 * time.Hour
	case "w":
		mult = 7 * 24 * time.Hour
	default:
		return time.ParseDuration(s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return time.Duration(n) * mult, nil
}
