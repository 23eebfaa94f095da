package fileshare

// Resolution tells the Sync Driver what to do with a Conflict once it has
// been decided: which side's bytes (if any) become authoritative, and
// whether the baseline alone should be updated without touching either
// side (used when both sides already converged on the same content).
type Resolution int

const (
	ResolveNone Resolution = iota
	ResolveAcceptLocal
	ResolveAcceptRemote
	ResolveBaselineOnly
	ResolveNeedsUser
)

// Prompter is implemented by the CLI layer to ask an interactive user how
// to resolve a conflict that the matrix below cannot decide automatically.
// A nil Prompter means conflicts requiring input surface as
// StatusUnhandledConflict instead of blocking.
type Prompter interface {
	ResolveConflict(c Conflict) (Resolution, error)
}

// Resolved pairs a Conflict with the Resolution chosen for it.
type Resolved struct {
	Conflict   Conflict
	Resolution Resolution
}

// Resolve walks every conflict in d and decides its Resolution, consulting
// prompt only for conflicts the matrix below cannot auto-resolve. This
// mirrors the teacher's own merge step: decide first from the cheap,
// structural signals, fall back to asking only when genuinely ambiguous.
func Resolve(d *Diff, prompt Prompter) ([]Resolved, error) {
	resolved := make([]Resolved, 0, len(d.Conflicts))

	for _, c := range d.Conflicts {
		if err := checkInterrupted(); err != nil {
			return nil, err
		}

		res, err := autoResolve(c)
		if err != nil {
			return nil, err
		}

		if res == ResolveNeedsUser {
			if prompt == nil {
				return nil, unhandledConflictErr(c.Local.Path)
			}
			res, err = prompt.ResolveConflict(c)
			if err != nil {
				return nil, err
			}
		}

		resolved = append(resolved, Resolved{Conflict: c, Resolution: res})
	}

	return resolved, nil
}

// autoResolve applies the conflict resolution matrix (spec.md §4.4),
// keyed on the literal (local op, remote op) pair rather than any
// secondary signal like size, grounded directly on merge_conflicts in
// original_source/src/app/main.cpp. Cells the original leaves unhandled
// (and which the diff engine's own invariants make unreachable, since an
// Added tag implies no baseline entry while a Newer/Revert tag implies
// one) fall through to the protocol-error default.
func autoResolve(c Conflict) (Resolution, error) {
	switch c.Local.Op {
	case LocalAdded:
		switch c.Remote.Op {
		case RemoteAdded:
			// Same timestamp is the only way this pairing survives the
			// diff engine's own Added/Added reclassification; it means
			// both sides independently produced what looks like the same
			// file.
			if c.Local.File.ModTimeMs == c.Remote.File.ModTimeMs {
				return ResolveBaselineOnly, nil
			}
		case RemoteDelete:
			return ResolveAcceptLocal, nil
		case RemoteNewer:
			return ResolveAcceptRemote, nil
		}

	case LocalDelete:
		switch c.Remote.Op {
		case RemoteAdded:
			return ResolveAcceptRemote, nil
		case RemoteNewer, RemoteRevert:
			return ResolveAcceptRemote, nil
		}

	case LocalNewer:
		switch c.Remote.Op {
		case RemoteNewer, RemoteRevert:
			return ResolveNeedsUser, nil
		case RemoteDelete, RemoteAdded:
			return ResolveAcceptLocal, nil
		}

	case LocalRevert:
		switch c.Remote.Op {
		case RemoteNewer, RemoteRevert:
			return ResolveNeedsUser, nil
		case RemoteDelete:
			return ResolveAcceptLocal, nil
		}
	}

	return ResolveNone, protocolErr(unhandledOpPairErr(c))
}

func unhandledOpPairErr(c Conflict) error {
	return &unhandledPair{local: c.Local.Op, remote: c.Remote.Op, path: c.Local.Path}
}

type unhandledPair struct {
	local, remote Operation
	path          string
}

func (u *unhandledPair) Error() string {
	return "unhandled conflict case: " + u.local.String() + " x " + u.remote.String() + " : " + u.path
}
