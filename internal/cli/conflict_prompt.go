package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauern/padsync/internal/resolve"
	"github.com/klauern/padsync/internal/sync"
	"github.com/klauern/padsync/internal/ui"
)

// errAborted is returned when the user aborts conflict resolution.
var errAborted = errors.New("conflict resolution aborted")

// ConflictPrompt resolves conflicts by asking on a line-oriented terminal.
type ConflictPrompt struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewConflictPrompt creates a prompt reading from stdin.
func NewConflictPrompt() *ConflictPrompt {
	return newConflictPrompt(os.Stdin, os.Stdout)
}

func newConflictPrompt(r io.Reader, w io.Writer) *ConflictPrompt {
	return &ConflictPrompt{reader: bufio.NewReader(r), out: w}
}

// Resolve implements resolve.Resolver.
func (cp *ConflictPrompt) Resolve(_ context.Context, det *sync.Detection) (map[string]resolve.Decision, error) {
	if det == nil || len(det.Conflicts) == 0 {
		return map[string]resolve.Decision{}, nil
	}
	conflicts := det.Conflicts

	cp.printf("\n=== Conflict Resolution ===\n")
	cp.printf("Found %d conflict(s) that require a decision.\n", len(conflicts))
	cp.displaySummary(conflicts)

	mode, err := cp.promptMode()
	if err != nil {
		return nil, err
	}
	switch mode {
	case modeAllLocal:
		return resolve.All(conflicts, resolve.Local), nil
	case modeAllRemote:
		return resolve.All(conflicts, resolve.Remote), nil
	case modeAbort:
		return nil, errAborted
	}

	decisions := make(map[string]resolve.Decision, len(conflicts))
	for i, c := range conflicts {
		cp.printf("\n--- Conflict %d of %d: %s %s ---\n", i+1, len(conflicts), c.Store, c.Key)
		cp.showConflict(c)

		d, err := cp.promptDecision(c)
		if err != nil {
			return nil, fmt.Errorf("failed to get decision for %s: %w", c.ID(), err)
		}
		decisions[c.ID()] = d
		cp.printf("%s\n", ui.StatusSuccess(c.ID()+": "+describe(c, d)))
	}
	return decisions, nil
}

type promptMode int

const (
	modeEach promptMode = iota + 1
	modeAllLocal
	modeAllRemote
	modeAbort
)

func (cp *ConflictPrompt) promptMode() (promptMode, error) {
	cp.printf("\nHow would you like to handle these conflicts?\n")
	cp.printf("  1. Decide each conflict\n")
	cp.printf("  2. Keep local for all\n")
	cp.printf("  3. Take remote for all\n")
	cp.printf("  4. Abort (leave the sync unresolved)\n")
	n, err := cp.readChoice(4)
	return promptMode(n), err
}

func (cp *ConflictPrompt) promptDecision(c sync.Conflict) (resolve.Decision, error) {
	limit := 3
	cp.printf("\n  1. %s\n", c.LocalLabel())
	cp.printf("  2. %s\n", c.RemoteLabel())
	if c.Kind == sync.ConflictField && len(c.Fields) > 1 {
		cp.printf("  3. Choose per field\n")
		cp.printf("  4. Abort\n")
		limit = 4
	} else {
		cp.printf("  3. Abort\n")
	}

	n, err := cp.readChoice(limit)
	if err != nil {
		return resolve.Decision{}, err
	}
	switch {
	case n == 1:
		return resolve.Decision{Choice: resolve.Local}, nil
	case n == 2:
		return resolve.Decision{Choice: resolve.Remote}, nil
	case n == limit:
		return resolve.Decision{}, errAborted
	default:
		return cp.promptFields(c)
	}
}

// promptFields asks for each conflicting field. The item-level choice is
// local; fields set to remote become overrides.
func (cp *ConflictPrompt) promptFields(c sync.Conflict) (resolve.Decision, error) {
	d := resolve.Decision{Choice: resolve.Local}
	for _, f := range c.Fields {
		for {
			cp.printf("  %s [l/r]: ", f.Field)
			line, err := cp.readLine()
			if err != nil {
				return resolve.Decision{}, err
			}
			choice, err := resolve.ParseChoice(line)
			if err != nil {
				cp.printf("  %s\n", ui.Warning("enter l (local) or r (remote)"))
				continue
			}
			if choice == resolve.Remote {
				if d.Fields == nil {
					d.Fields = make(map[string]resolve.Choice)
				}
				d.Fields[f.Field] = resolve.Remote
			}
			break
		}
	}
	return d, nil
}

func (cp *ConflictPrompt) showConflict(c sync.Conflict) {
	cp.printf("%s\n", c.Summary())
	switch c.Kind {
	case sync.ConflictField:
		cp.printf("%-16s %-24s %s\n", "FIELD", "LOCAL", "REMOTE")
		for _, f := range c.Fields {
			cp.printf("%-16s %-24s %s\n", f.Field,
				truncate(ui.FormatValue(f.LocalValue), 24), ui.FormatValue(f.RemoteValue))
			cp.printf("%-16s %-24s %s\n", "",
				ui.Dim(ui.FormatTime(f.LocalModifiedAt)), ui.Dim(ui.FormatTime(f.RemoteModifiedAt)))
		}
	case sync.ConflictLocalOnly:
		cp.showItem("Local item", c.Local)
	case sync.ConflictRemoteOnly:
		cp.showItem("Remote item", c.Remote)
	}
}

func (cp *ConflictPrompt) showItem(label string, item any) {
	cp.printf("%s:\n", label)
	for _, f := range ui.ItemFields(item) {
		cp.printf("  %-16s %s\n", f.Name, f.Value)
	}
}

func (cp *ConflictPrompt) displaySummary(conflicts []sync.Conflict) {
	cp.printf("\n%-20s %-10s %-12s %s\n", "STORE", "KEY", "KIND", "FIELDS")
	for _, c := range conflicts {
		fields := "-"
		if len(c.Fields) > 0 {
			names := make([]string, len(c.Fields))
			for i, f := range c.Fields {
				names[i] = f.Field
			}
			fields = strings.Join(names, ", ")
		}
		cp.printf("%-20s %-10s %-12s %s\n", c.Store, c.Key, c.Kind, fields)
	}
}

// readChoice reads a number in [1, limit], asking again on invalid input.
func (cp *ConflictPrompt) readChoice(limit int) (int, error) {
	cp.printf("\nEnter choice [1-%d]: ", limit)
	for {
		line, err := cp.readLine()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > limit {
			cp.printf("Invalid choice. Enter 1-%d: ", limit)
			continue
		}
		return n, nil
	}
}

func (cp *ConflictPrompt) readLine() (string, error) {
	line, err := cp.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (cp *ConflictPrompt) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(cp.out, format, args...)
}

// describe renders a decision using the conflict's action labels.
func describe(c sync.Conflict, d resolve.Decision) string {
	label := c.LocalLabel()
	if d.Choice == resolve.Remote {
		label = c.RemoteLabel()
	}
	if len(d.Fields) > 0 {
		label += " (mixed)"
	}
	return label
}
