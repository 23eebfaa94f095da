package fileshare

import "strings"

// Baseline wraps the saved-state tree and exposes the two path-walking
// mutators spec.md §4.2 requires. It never retains a reference to a
// caller-supplied FileEntry; every insert takes a copy.
type Baseline struct {
	tree    Directory
	persist func(Directory) error
}

// NewBaseline wraps an existing tree (e.g. one just loaded from config or
// synthesized by InitialBaseline) as a Baseline. persist is invoked by
// Save; a nil persist makes Save a no-op, which test doubles rely on.
func NewBaseline(tree Directory, persist func(Directory) error) *Baseline {
	return &Baseline{tree: tree, persist: persist}
}

// Tree returns the current baseline snapshot. Callers must not mutate the
// returned value; it aliases the Baseline's internal state.
func (b *Baseline) Tree() *Directory {
	return &b.tree
}

// Save persists the current tree, once, after a batch of Upsert/Erase
// calls — the Sync Driver calls this after each execute() batch rather
// than after every individual file, so an interrupted run still commits
// everything that finished.
func (b *Baseline) Save() error {
	if b.persist == nil {
		return nil
	}
	return b.persist(b.tree)
}

// Upsert finds or creates the chain of directories from the root down to
// file's parent, then inserts or replaces the file with that name in that
// directory.
func (b *Baseline) Upsert(file FileEntry) {
	components := splitPath(file.Path)
	upsertAt(&b.tree, components, file)
}

// Erase walks to the parent directory and removes the file with the
// matching name. A delete of something already absent is a silent no-op.
func (b *Baseline) Erase(file FileEntry) {
	components := splitPath(file.Path)
	eraseAt(&b.tree, components)
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func upsertAt(dir *Directory, components []string, file FileEntry) {
	if len(components) == 0 {
		return
	}
	if len(components) == 1 {
		name := components[0]
		for i := range dir.Files {
			if dir.Files[i].Name == name {
				dir.Files[i] = file
				return
			}
		}
		dir.Files = append(dir.Files, file)
		return
	}

	head := components[0]
	for i := range dir.Dirs {
		if dir.Dirs[i].Name == head {
			upsertAt(&dir.Dirs[i], components[1:], file)
			return
		}
	}

	// Directory creation along the way is implicit; empty intermediate
	// directories are permitted.
	sub := Directory{Name: head, Path: joinPath(dir.Path, head)}
	dir.Dirs = append(dir.Dirs, sub)
	upsertAt(&dir.Dirs[len(dir.Dirs)-1], components[1:], file)
}

func eraseAt(dir *Directory, components []string) {
	if len(components) == 0 {
		return
	}
	if len(components) == 1 {
		name := components[0]
		for i := range dir.Files {
			if dir.Files[i].Name == name {
				dir.Files = append(dir.Files[:i], dir.Files[i+1:]...)
				return
			}
		}
		// Already absent: idempotent no-op.
		return
	}

	head := components[0]
	for i := range dir.Dirs {
		if dir.Dirs[i].Name == head {
			eraseAt(&dir.Dirs[i], components[1:])
			return
		}
	}
	// Parent directory doesn't exist: idempotent no-op.
}

// InitialBaseline lazily materializes a saved-state tree the first time a
// sync workflow runs against a repository: for every file present in both
// local and remote, the older timestamp is kept; files present on only one
// side are omitted so they surface as adds in the next diff (spec.md §4.2,
// property 6).
func InitialBaseline(local, remote *Directory) Directory {
	result := Directory{Name: local.Name, Path: local.Path}

	for _, lf := range local.Files {
		if rf, ok := remote.FindFile(lf.Name); ok {
			older := lf
			if rf.ModTimeMs < lf.ModTimeMs {
				older = *rf
			}
			older.Path = joinPath(result.Path, lf.Name)
			result.Files = append(result.Files, older)
		}
	}

	for i := range local.Dirs {
		ld := &local.Dirs[i]
		if rd, ok := remote.FindDirectory(ld.Name); ok {
			sub := InitialBaseline(ld, rd)
			sub.Path = joinPath(result.Path, ld.Name)
			result.Dirs = append(result.Dirs, sub)
		}
	}

	return result
}
