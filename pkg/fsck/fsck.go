// Package fsck walks the snapshot graph from a set of roots and reports
// objects that are missing, corrupt, or referenced with the wrong type.
// It complements the store's physical sweep, which checks files on disk
// without following references.
package fsck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/odvcencio/grove/pkg/object"
)

// FindingType classifies a single integrity problem.
type FindingType string

const (
	FindingMissing      FindingType = "missing"       // referenced object is not in the store
	FindingHashMismatch FindingType = "hash-mismatch" // stored content does not hash to its name
	FindingMalformed    FindingType = "malformed"     // object cannot be decoded or parsed
	FindingTypeMismatch FindingType = "type-mismatch" // object type disagrees with its references
)

// Finding describes one integrity problem discovered during the walk.
type Finding struct {
	Hash   object.Hash
	Type   FindingType
	Path   string // where the object was first referenced, empty for roots and commits
	Detail string
}

// Report is the outcome of a verification walk. Findings are sorted by
// hash, then path, then type.
type Report struct {
	Checked  int // distinct objects visited
	Findings []Finding
}

// OK reports whether the walk found no problems.
func (r *Report) OK() bool {
	return len(r.Findings) == 0
}

// Verifier walks the object graph. Workers above one check objects
// concurrently; the report is identical either way.
type Verifier struct {
	Store   *object.Store
	Workers int
	Logger  *slog.Logger
}

// checkItem is one object to verify, with the type its referencer claimed.
type checkItem struct {
	hash object.Hash
	want object.ObjectType // empty when the reference carries no expectation
	path string
}

// checkResult is what a single check produced. children is only populated
// when the object parsed cleanly.
type checkResult struct {
	item     checkItem
	finding  *Finding
	children []checkItem
}

// Verify checks every object reachable from roots and returns a report of
// the problems found. Object-level damage never fails the walk; the only
// errors are setup problems and context cancellation, and a cancelled
// walk still returns the findings gathered so far.
//
// Objects whose content does not match their hash are reported and not
// descended into, since their references cannot be trusted.
func (v *Verifier) Verify(ctx context.Context, roots ...object.Hash) (*Report, error) {
	if v.Store == nil {
		return nil, fmt.Errorf("fsck: store is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := v.Logger
	if logger == nil {
		logger = slog.Default()
	}

	report := &Report{}
	visited := make(map[object.Hash]bool)
	want := make(map[object.Hash]object.ObjectType)

	level := make([]checkItem, 0, len(roots))
	for _, h := range roots {
		if item, ok := admit(checkItem{hash: h}, visited, want, report); ok {
			level = append(level, item)
		}
	}

	var err error
	if v.Workers > 1 {
		err = v.runParallel(ctx, level, visited, want, report)
	} else {
		err = v.runSerial(ctx, level, visited, want, report)
	}
	if err != nil {
		// Cancellation surfaces the partial report alongside the error.
		sortFindings(report.Findings)
		return report, err
	}

	sortFindings(report.Findings)
	logger.Debug("integrity walk complete",
		"roots", len(level),
		"checked", report.Checked,
		"findings", len(report.Findings),
	)
	return report, nil
}

func (v *Verifier) runSerial(ctx context.Context, level []checkItem, visited map[object.Hash]bool, want map[object.Hash]object.ObjectType, report *Report) error {
	for len(level) > 0 {
		var next []checkItem
		for _, item := range level {
			if err := ctx.Err(); err != nil {
				return err
			}
			next = v.collect(v.check(item), next, visited, want, report)
		}
		level = next
	}
	return nil
}

// runParallel walks the graph level by level. Workers check the current
// level's objects concurrently; results are folded back in dispatch order
// so that discovery, and with it the report, stays deterministic.
func (v *Verifier) runParallel(ctx context.Context, level []checkItem, visited map[object.Hash]bool, want map[object.Hash]object.ObjectType, report *Report) error {
	type job struct {
		item checkItem
		out  *checkResult
	}

	workCh := make(chan job)
	doneCh := make(chan struct{}, v.Workers)

	var wg sync.WaitGroup
	var stopOnce sync.Once
	stopWorkers := func() {
		stopOnce.Do(func() {
			close(workCh)
			wg.Wait()
		})
	}
	defer stopWorkers()

	for i := 0; i < v.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range workCh {
				*j.out = v.check(j.item)
				doneCh <- struct{}{}
			}
		}()
	}

	for len(level) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		results := make([]checkResult, len(level))
		sent, received := 0, 0
		for received < len(level) {
			if sent < len(level) {
				select {
				case workCh <- job{item: level[sent], out: &results[sent]}:
					sent++
				case <-doneCh:
					received++
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			select {
			case <-doneCh:
				received++
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var next []checkItem
		for _, res := range results {
			next = v.collect(res, next, visited, want, report)
		}
		level = next
	}
	return nil
}

// collect records a result and admits its children into the next level.
func (v *Verifier) collect(res checkResult, next []checkItem, visited map[object.Hash]bool, want map[object.Hash]object.ObjectType, report *Report) []checkItem {
	report.Checked++
	if res.finding != nil {
		report.Findings = append(report.Findings, *res.finding)
	}
	for _, child := range res.children {
		if item, ok := admit(child, visited, want, report); ok {
			next = append(next, item)
		}
	}
	return next
}

// admit decides whether an item still needs checking. A hash seen again
// with a different declared type is itself a finding, reported against the
// later reference.
func admit(item checkItem, visited map[object.Hash]bool, want map[object.Hash]object.ObjectType, report *Report) (checkItem, bool) {
	if item.hash == "" {
		return checkItem{}, false
	}
	if visited[item.hash] {
		if prev := want[item.hash]; prev != "" && item.want != "" && item.want != prev {
			report.Findings = append(report.Findings, Finding{
				Hash:   item.hash,
				Type:   FindingTypeMismatch,
				Path:   item.path,
				Detail: fmt.Sprintf("referenced as both %s and %s", prev, item.want),
			})
		}
		return checkItem{}, false
	}
	visited[item.hash] = true
	if item.want != "" {
		want[item.hash] = item.want
	}
	return item, true
}

// check verifies a single object: it must exist, decode, hash to its own
// name, match the type its referencer declared, and parse.
func (v *Verifier) check(item checkItem) checkResult {
	res := checkResult{item: item}
	fail := func(ft FindingType, detail string) checkResult {
		res.finding = &Finding{Hash: item.hash, Type: ft, Path: item.path, Detail: detail}
		return res
	}

	objType, data, err := v.Store.Read(item.hash)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return fail(FindingMissing, "object not found")
		}
		return fail(FindingMalformed, err.Error())
	}

	if actual := v.Store.Algorithm().HashObject(objType, data); actual != item.hash {
		return fail(FindingHashMismatch, fmt.Sprintf("content hashes to %s", actual))
	}
	if item.want != "" && objType != item.want {
		return fail(FindingTypeMismatch, fmt.Sprintf("referenced as %s, stored as %s", item.want, objType))
	}

	switch objType {
	case object.TypeCommit:
		c, err := object.UnmarshalCommit(data)
		if err != nil {
			return fail(FindingMalformed, err.Error())
		}
		res.children = append(res.children, checkItem{hash: c.TreeHash, want: object.TypeTree, path: item.path})
		for _, p := range c.Parents {
			res.children = append(res.children, checkItem{hash: p, want: object.TypeCommit, path: item.path + "@parent"})
		}
	case object.TypeTree:
		tr, err := object.UnmarshalTree(data)
		if err != nil {
			return fail(FindingMalformed, err.Error())
		}
		for _, e := range tr.Entries {
			res.children = append(res.children, checkItem{
				hash: e.Hash,
				want: e.Type,
				path: joinPath(item.path, e.Name),
			})
		}
	}
	return res
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Hash != b.Hash {
			return a.Hash < b.Hash
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Type < b.Type
	})
}
