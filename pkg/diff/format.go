package diff

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/odvcencio/grove/pkg/object"
	"github.com/odvcencio/grove/pkg/textdiff"
)

// UnifiedContextLines is the number of unchanged lines shown around each
// hunk in unified output.
const UnifiedContextLines = 3

// FormatNameStatus produces a one-line-per-path summary of a change set.
//
// Output format:
//
//	A	path            (added)
//	D	path            (removed)
//	M	path            (modified)
//	R	old-path	new-path
//
// Rows are sorted by path; renames sort by their old path. Load errors are
// not included, callers report those separately.
func FormatNameStatus(cs *ChangeSet) string {
	type row struct {
		key  string
		line string
	}

	rows := make([]row, 0, len(cs.Added)+len(cs.Removed)+len(cs.Modified)+len(cs.Renamed))
	for _, c := range cs.Added {
		rows = append(rows, row{c.Path, fmt.Sprintf("A\t%s\n", c.Path)})
	}
	for _, c := range cs.Removed {
		rows = append(rows, row{c.Path, fmt.Sprintf("D\t%s\n", c.Path)})
	}
	for _, c := range cs.Modified {
		rows = append(rows, row{c.Path, fmt.Sprintf("M\t%s\n", c.Path)})
	}
	for _, r := range cs.Renamed {
		rows = append(rows, row{r.OldPath, fmt.Sprintf("R\t%s\t%s\n", r.OldPath, r.NewPath)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(r.line)
	}
	return b.String()
}

// WriteUnified writes a unified-style diff of the change set to w, reading
// blob contents from store. Modified and added files come first in path
// order, then removals, then rename notices. Binary blobs and mode-only
// changes print headers without hunks.
func WriteUnified(w io.Writer, store *object.Store, cs *ChangeSet) error {
	body := make([]Change, 0, len(cs.Modified)+len(cs.Added))
	body = append(body, cs.Modified...)
	body = append(body, cs.Added...)
	sort.Slice(body, func(i, j int) bool { return body[i].Path < body[j].Path })

	for _, c := range body {
		if err := writeFileDiff(w, store, c); err != nil {
			return err
		}
	}
	for _, c := range cs.Removed {
		if err := writeFileDiff(w, store, c); err != nil {
			return err
		}
	}
	for _, r := range cs.Renamed {
		writeRename(w, r.OldPath, r.NewPath)
	}
	return nil
}

// writeFileDiff prints the diff for a single change. Either hash may be
// empty for additions and removals.
func writeFileDiff(w io.Writer, store *object.Store, c Change) error {
	before, err := readBlobData(store, c.OldHash)
	if err != nil {
		return fmt.Errorf("diff: read old blob for %s: %w", c.Path, err)
	}
	after, err := readBlobData(store, c.NewHash)
	if err != nil {
		return fmt.Errorf("diff: read new blob for %s: %w", c.Path, err)
	}

	fmt.Fprintf(w, "diff --grove a/%s b/%s\n", c.Path, c.Path)
	switch {
	case c.OldHash == "":
		fmt.Fprintf(w, "new file mode %s\n", c.NewMode)
	case c.NewHash == "":
		fmt.Fprintf(w, "deleted file mode %s\n", c.OldMode)
	case c.OldMode != c.NewMode:
		fmt.Fprintf(w, "old mode %s\n", c.OldMode)
		fmt.Fprintf(w, "new mode %s\n", c.NewMode)
	}

	if bytes.Equal(before, after) {
		return nil
	}
	if isBinary(before) || isBinary(after) {
		fmt.Fprintf(w, "Binary files a/%s and b/%s differ\n", c.Path, c.Path)
		return nil
	}

	fmt.Fprintf(w, "--- a/%s\n", c.Path)
	fmt.Fprintf(w, "+++ b/%s\n", c.Path)

	ops := textdiff.Lines(textdiff.SplitLines(before), textdiff.SplitLines(after))
	for _, h := range buildUnifiedHunks(ops, UnifiedContextLines) {
		oldStart, oldCount, newStart, newCount := h.lineRange(ops)
		fmt.Fprintf(w, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)

		for _, op := range ops[h.start:h.end] {
			switch op.Kind {
			case textdiff.Keep:
				fmt.Fprintf(w, " %s\n", op.Line)
			case textdiff.Add:
				fmt.Fprintf(w, "+%s\n", op.Line)
			case textdiff.Del:
				fmt.Fprintf(w, "-%s\n", op.Line)
			}
		}
	}
	return nil
}

func writeRename(w io.Writer, fromPath, toPath string) {
	fmt.Fprintf(w, "diff --grove a/%s b/%s\n", fromPath, toPath)
	fmt.Fprintf(w, "rename from %s\n", fromPath)
	fmt.Fprintf(w, "rename to %s\n", toPath)
}

func readBlobData(store *object.Store, h object.Hash) ([]byte, error) {
	if h == "" {
		return nil, nil
	}
	blob, err := store.ReadBlob(h)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

// isBinary mirrors the common NUL-byte heuristic for telling text from
// binary content.
func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

type unifiedHunk struct {
	start int
	end   int
}

// buildUnifiedHunks groups the non-Keep ops into context-padded ranges.
// Overlapping or adjacent ranges merge into a single hunk.
func buildUnifiedHunks(ops []textdiff.Op, contextLines int) []unifiedHunk {
	if contextLines < 0 {
		contextLines = 0
	}

	var hunks []unifiedHunk
	for i, op := range ops {
		if op.Kind == textdiff.Keep {
			continue
		}

		start := i - contextLines
		if start < 0 {
			start = 0
		}
		end := i + contextLines + 1
		if end > len(ops) {
			end = len(ops)
		}

		if len(hunks) == 0 || start > hunks[len(hunks)-1].end {
			hunks = append(hunks, unifiedHunk{start: start, end: end})
			continue
		}
		if end > hunks[len(hunks)-1].end {
			hunks[len(hunks)-1].end = end
		}
	}

	return hunks
}

// lineRange computes the @@ header numbers for a hunk. Counts of zero pull
// the start back one line, matching the unified diff convention for empty
// ranges.
func (h unifiedHunk) lineRange(ops []textdiff.Op) (oldStart, oldCount, newStart, newCount int) {
	oldLine, newLine := 1, 1
	for i := 0; i < h.start; i++ {
		switch ops[i].Kind {
		case textdiff.Keep:
			oldLine++
			newLine++
		case textdiff.Del:
			oldLine++
		case textdiff.Add:
			newLine++
		}
	}

	oldStart, newStart = oldLine, newLine

	for i := h.start; i < h.end; i++ {
		switch ops[i].Kind {
		case textdiff.Keep:
			oldCount++
			newCount++
			oldLine++
			newLine++
		case textdiff.Del:
			oldCount++
			oldLine++
		case textdiff.Add:
			newCount++
			newLine++
		}
	}

	if oldCount == 0 {
		oldStart--
	}
	if newCount == 0 {
		newStart--
	}

	return oldStart, oldCount, newStart, newCount
}
