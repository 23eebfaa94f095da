package fileshare

import (
	"sort"
	"testing"
)

func dir(name, path string, files []FileEntry, dirs ...Directory) Directory {
	return Directory{Name: name, Path: path, Files: files, Dirs: dirs}
}

func file(name, path string, size, modTimeMs int64) FileEntry {
	return FileEntry{Name: name, Path: path, Size: size, ModTimeMs: modTimeMs}
}

// TestComputeDiff_Scenarios exercises the literal scenarios from spec.md §8
// (S1-S5), each a three-tree input with a concrete expected DiffResult.
func TestComputeDiff_Scenarios(t *testing.T) {
	testCases := [...]struct {
		name      string
		local     Directory
		baseline  Directory
		remote    Directory
		changes   []Change
		conflicts []Conflict
	}{
		0: { // S1: two-way add
			name:     "two-way add",
			local:    dir("", "", []FileEntry{file("a", "a", 5, 10)}),
			baseline: dir("", "", nil),
			remote:   dir("", "", nil),
			changes:  []Change{{Path: "a", Op: LocalAdded, File: file("a", "a", 5, 10)}},
		},
		1: { // S2: both-sides delete
			name:     "both-sides delete",
			local:    dir("", "", nil),
			baseline: dir("", "", []FileEntry{file("a", "a", 1, 10)}),
			remote:   dir("", "", nil),
		},
		2: { // S3: simultaneous add, same mtime
			name:     "simultaneous add same mtime",
			local:    dir("", "", []FileEntry{file("a", "a", 100, 42)}),
			baseline: dir("", "", nil),
			remote:   dir("", "", []FileEntry{file("a", "a", 100, 42)}),
			conflicts: []Conflict{{
				Local:  Change{Path: "a", Op: LocalAdded, File: file("a", "a", 100, 42)},
				Remote: Change{Path: "a", Op: RemoteAdded, File: file("a", "a", 100, 42)},
			}},
		},
		3: { // S4: simultaneous add, different mtime, resolved toward the newer side
			name:     "simultaneous add different mtime",
			local:    dir("", "", []FileEntry{file("a", "a", 1, 10)}),
			baseline: dir("", "", nil),
			remote:   dir("", "", []FileEntry{file("a", "a", 1, 20)}),
			conflicts: []Conflict{{
				Local:  Change{Path: "a", Op: LocalAdded, File: file("a", "a", 1, 10)},
				Remote: Change{Path: "a", Op: RemoteNewer, File: file("a", "a", 1, 20)},
			}},
		},
		4: { // S5: local edit vs remote delete
			name:     "local edit vs remote delete",
			local:    dir("", "", []FileEntry{file("a", "a", 1, 20)}),
			baseline: dir("", "", []FileEntry{file("a", "a", 1, 10)}),
			remote:   dir("", "", nil),
			conflicts: []Conflict{{
				Local:  Change{Path: "a", Op: LocalNewer, File: file("a", "a", 1, 20)},
				Remote: Change{Path: "a", Op: RemoteDelete, File: file("a", "a", 1, 10)},
			}},
		},
	}

	for i, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeDiff(&tc.local, &tc.baseline, &tc.remote)
			if err != nil {
				t.Fatalf("%d: ComputeDiff returned error: %v", i, err)
			}
			if !changesEqual(got.Changes, tc.changes) {
				t.Errorf("%d: changes = %+v, want %+v", i, got.Changes, tc.changes)
			}
			if !conflictsEqual(got.Conflicts, tc.conflicts) {
				t.Errorf("%d: conflicts = %+v, want %+v", i, got.Conflicts, tc.conflicts)
			}
		})
	}
}

func changesEqual(a, b []Change) bool {
	if len(a) != len(b) {
		return false
	}
	sort.Slice(a, func(i, j int) bool { return a[i].Path < a[j].Path })
	sort.Slice(b, func(i, j int) bool { return b[i].Path < b[j].Path })
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func conflictsEqual(a, b []Conflict) bool {
	if len(a) != len(b) {
		return false
	}
	sort.Slice(a, func(i, j int) bool { return a[i].Local.Path < a[j].Local.Path })
	sort.Slice(b, func(i, j int) bool { return b[i].Local.Path < b[j].Local.Path })
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestComputeDiff_EveryPathClassifiedExactlyOnce exercises property 1: every
// path in L∪S∪R appears in exactly one of changes/conflicts.
func TestComputeDiff_EveryPathClassifiedExactlyOnce(t *testing.T) {
	local := dir("", "", []FileEntry{
		file("added-local", "added-local", 1, 10),
		file("both-edited", "both-edited", 1, 30),
		file("deleted-remote", "deleted-remote", 1, 10),
	}, dir("sub", "sub", []FileEntry{
		file("nested", "sub/nested", 1, 5),
	}))
	baseline := dir("", "", []FileEntry{
		file("both-edited", "both-edited", 1, 10),
		file("deleted-remote", "deleted-remote", 1, 10),
		file("deleted-both", "deleted-both", 1, 10),
	})
	remote := dir("", "", []FileEntry{
		file("added-remote", "added-remote", 1, 10),
		file("both-edited", "both-edited", 1, 20),
	}, dir("sub", "sub", []FileEntry{
		file("nested", "sub/nested", 1, 5),
	}))

	got, err := ComputeDiff(&local, &baseline, &remote)
	if err != nil {
		t.Fatalf("ComputeDiff returned error: %v", err)
	}

	seen := make(map[string]int)
	for _, c := range got.Changes {
		seen[c.Path]++
	}
	for _, c := range got.Conflicts {
		seen[c.Local.Path]++
	}

	want := []string{"added-local", "added-remote", "both-edited", "deleted-remote", "sub/nested"}
	for _, p := range want {
		if seen[p] != 1 {
			t.Errorf("path %q classified %d times, want exactly 1", p, seen[p])
		}
	}
	if seen["deleted-both"] != 0 {
		t.Errorf("deleted-both: want silently dropped (both-delete collapse), got %d classifications", seen["deleted-both"])
	}
}

// TestComputeDiff_BothDeleteCollapsesAcrossDirectoryRemoval exercises the
// directory-level both-delete rule: a whole subdirectory removed from both
// local and remote since the baseline must drop silently, not surface as a
// conflict or a change.
func TestComputeDiff_BothDeleteCollapsesAcrossDirectoryRemoval(t *testing.T) {
	baseline := dir("", "", nil, dir("gone", "gone", []FileEntry{
		file("x", "gone/x", 1, 10),
		file("y", "gone/y", 1, 10),
	}))
	local := dir("", "", nil)
	remote := dir("", "", nil)

	got, err := ComputeDiff(&local, &baseline, &remote)
	if err != nil {
		t.Fatalf("ComputeDiff returned error: %v", err)
	}
	if len(got.Changes) != 0 || len(got.Conflicts) != 0 {
		t.Errorf("expected an empty DiffResult, got changes=%+v conflicts=%+v", got.Changes, got.Conflicts)
	}
}

// TestComputeDiff_DirectoryVanishedOnOneSide covers the bulk-classification
// rule: a directory present in the baseline and one live side, but not the
// other, classifies every file beneath it as a delete on the side that lost
// it.
func TestComputeDiff_DirectoryVanishedOnOneSide(t *testing.T) {
	baseline := dir("", "", nil, dir("docs", "docs", []FileEntry{
		file("a", "docs/a", 1, 10),
		file("b", "docs/b", 1, 10),
	}))
	local := dir("", "", nil, dir("docs", "docs", []FileEntry{
		file("a", "docs/a", 1, 10),
		file("b", "docs/b", 1, 10),
	}))
	remote := dir("", "", nil) // remote lost the whole directory

	got, err := ComputeDiff(&local, &baseline, &remote)
	if err != nil {
		t.Fatalf("ComputeDiff returned error: %v", err)
	}
	if len(got.Conflicts) != 0 {
		t.Errorf("expected no conflicts, got %+v", got.Conflicts)
	}
	want := map[string]Operation{"docs/a": RemoteDelete, "docs/b": RemoteDelete}
	if len(got.Changes) != len(want) {
		t.Fatalf("changes = %+v, want 2 RemoteDelete entries", got.Changes)
	}
	for _, c := range got.Changes {
		if c.Op != want[c.Path] {
			t.Errorf("path %q: op = %s, want %s", c.Path, c.Op, want[c.Path])
		}
	}
}

// TestComputeDiff_NewDirectoryBothSidesReducesToPerFileAdded covers a
// directory absent from the baseline but present on both local and remote:
// the walk must recurse as if the baseline held an empty directory there.
func TestComputeDiff_NewDirectoryBothSidesReducesToPerFileAdded(t *testing.T) {
	baseline := dir("", "", nil)
	local := dir("", "", nil, dir("new", "new", []FileEntry{
		file("only-local", "new/only-local", 1, 10),
	}))
	remote := dir("", "", nil, dir("new", "new", []FileEntry{
		file("only-remote", "new/only-remote", 1, 10),
	}))

	got, err := ComputeDiff(&local, &baseline, &remote)
	if err != nil {
		t.Fatalf("ComputeDiff returned error: %v", err)
	}
	if len(got.Conflicts) != 0 {
		t.Errorf("expected no conflicts, got %+v", got.Conflicts)
	}
	ops := make(map[string]Operation)
	for _, c := range got.Changes {
		ops[c.Path] = c.Op
	}
	if ops["new/only-local"] != LocalAdded {
		t.Errorf("new/only-local: op = %s, want LocalAdded", ops["new/only-local"])
	}
	if ops["new/only-remote"] != RemoteAdded {
		t.Errorf("new/only-remote: op = %s, want RemoteAdded", ops["new/only-remote"])
	}
}

// TestComputeDiff_DuplicateSameSideEmissionIsProtocolError exercises the
// protocol-error path directly, bypassing diffWalk, since the walk itself
// never produces two same-side diffs for one path.
func TestComputeDiff_DuplicateSameSideEmissionIsProtocolError(t *testing.T) {
	a := newDiffAccum()
	if err := a.emit("a", LocalAdded, file("a", "a", 1, 10)); err != nil {
		t.Fatalf("first emit: unexpected error %v", err)
	}
	err := a.emit("a", LocalNewer, file("a", "a", 1, 20))
	if err == nil {
		t.Fatal("expected a protocol error for two same-side emissions of the same path")
	}
	var e *Error
	if !asError(err, &e) || e.Code != StatusProtocolError {
		t.Errorf("err = %v, want a StatusProtocolError", err)
	}
}

func TestOperation_Symbol(t *testing.T) {
	testCases := [...]struct {
		op   Operation
		want string
	}{
		0: {LocalAdded, "\033[32m+\033[0m"},
		1: {RemoteAdded, "\033[32m+\033[0m"},
		2: {LocalDelete, "\033[31m-\033[0m"},
		3: {RemoteNewer, "\033[33mM\033[0m"},
		4: {LocalRevert, "\033[34mR\033[0m"},
		5: {NoOp, ""},
	}
	for i, tc := range testCases {
		if got := tc.op.Symbol(); got != tc.want {
			t.Errorf("%d: %s.Symbol() = %q, want %q", i, tc.op, got, tc.want)
		}
	}
}
