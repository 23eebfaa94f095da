package fileshare

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/cheggaaa/pb"
	expirableCache "github.com/odeke-em/cache"
	spinner "github.com/odeke-em/cli-spinner"
	"github.com/odeke-em/log"
	"github.com/odeke-em/semalim"
)

// Remote is the transport-level interface the Sync Driver runs against.
// transport.Remote satisfies it; tests substitute an in-memory fake.
type Remote interface {
	CheckClockSkew(ctx context.Context) error
	Tree(ctx context.Context) (Directory, error)
	Download(ctx context.Context, path string, dst io.Writer) (modTimeMs int64, err error)
	Upload(ctx context.Context, name, parentPath string, size, modTimeMs int64, src io.Reader, resumeToken string, onToken func(string)) (fileID string, err error)
	Delete(ctx context.Context, path string) error
}

// BaselineStore is the persistence seam the Sync Driver updates after every
// successful transfer, so the config package's file-based implementation
// and a test double both satisfy it.
type BaselineStore interface {
	Tree() *Directory
	Upsert(FileEntry)
	Erase(FileEntry)
	Save() error
}

// ResumeStore persists the content-token of an interrupted upload so a
// retried push threads the same upload instead of restarting it from byte
// zero. A nil ResumeStore on Driver disables resume entirely.
type ResumeStore interface {
	Get(path string) (token string, found bool, err error)
	Put(path, token string) error
	Clear(path string) error
}

// conflictThreshold is the number of unresolved conflicts past which the
// Driver offers to open them in an editor instead of prompting one by one
// (spec.md §4.5, grounded on the original program's `system(cmd)` editor
// launch for a large conflict report).
const conflictThreshold = 5

// outdatedSuffix marks a local file renamed aside before a download, so a
// failed download can restore it (spec.md §7).
const outdatedSuffix = ".fileshare_outdated"

// Driver runs the status/pull/push/sync workflows against one repository:
// a local root, a Baseline, and a Remote.
type Driver struct {
	LocalRoot string
	Baseline  BaselineStore
	Remote    Remote
	Prompt    Prompter
	Log       *log.Logger

	// EditorPath, when set, is launched on a spilled conflict report once
	// the number of conflicts exceeds conflictThreshold.
	EditorPath string

	// Resume persists in-flight upload content tokens across retries.
	Resume ResumeStore

	// Concurrency bounds how many transfers run at once; zero defaults to
	// the number of CPUs the way the teacher's maxProcs() helper does.
	Concurrency int

	remoteTreeCache *expirableCache.OperationCache
}

const remoteTreeCacheKey = "remote-tree"

func (d *Driver) concurrency() int {
	if d.Concurrency > 0 {
		return d.Concurrency
	}
	return runtime.NumCPU()
}

// fetchRemoteTree fetches the remote tree and memoizes it in a cache held on
// this Driver (created lazily on the first call), so a later workflow run on
// the same Driver reuses the fetched tree until the cached entry expires.
func (d *Driver) fetchRemoteTree(ctx context.Context) (Directory, error) {
	if d.remoteTreeCache == nil {
		d.remoteTreeCache = expirableCache.New()
	}
	if cachedValue, ok := d.remoteTreeCache.Get(remoteTreeCacheKey); ok && cachedValue != nil {
		if tree, ok := cachedValue.Value().(Directory); ok {
			return tree, nil
		}
	}

	tree, err := d.Remote.Tree(ctx)
	if err != nil {
		return Directory{}, err
	}
	d.remoteTreeCache.Put(remoteTreeCacheKey, expirableCache.NewExpirableValueWithOffset(tree, uint64(time.Minute)))
	return tree, nil
}

// Status computes the three-way diff without transferring anything.
func (d *Driver) Status(ctx context.Context) (*Diff, error) {
	ClearInterrupted()

	if err := d.Remote.CheckClockSkew(ctx); err != nil {
		return nil, err
	}

	if d.Log != nil {
		d.Log.Logln("Resolving...")
	}

	sp := spinner.New(10)
	sp.Start()
	defer sp.Stop()

	local, err := FromFilesystem(d.LocalRoot)
	if err != nil {
		return nil, err
	}

	remote, err := d.fetchRemoteTree(ctx)
	if err != nil {
		return nil, err
	}

	// The baseline is materialized lazily: a repository that has never
	// completed a sync has an empty saved state, which InitialBaseline
	// replaces with the local/remote intersection at the older timestamp
	// per path (spec.md §4.2, property 6) so a first run doesn't present
	// every already-shared file as a two-sided add.
	if isEmptyDir(d.Baseline.Tree()) {
		seedBaseline(d.Baseline, InitialBaseline(&local, &remote))
	}

	return ComputeDiff(&local, d.Baseline.Tree(), &remote)
}

func isEmptyDir(d *Directory) bool {
	return len(d.Files) == 0 && len(d.Dirs) == 0
}

// seedBaseline populates an empty BaselineStore with every file of initial,
// one Upsert at a time, so the lazy-initialization path reuses the same
// path-walking mutator the rest of the driver does rather than replacing
// the tree wholesale.
func seedBaseline(store BaselineStore, initial Directory) {
	for _, f := range initial.FilesRecursive() {
		store.Upsert(f)
	}
}

// Pull applies every Remote* change to the local filesystem and updates
// the baseline to match.
func (d *Driver) Pull(ctx context.Context) error {
	diff, err := d.Status(ctx)
	if err != nil {
		return err
	}

	resolved, err := Resolve(diff, d.Prompt)
	if err != nil {
		return err
	}

	var changes []Change
	for _, c := range diff.Changes {
		if c.Op == RemoteAdded || c.Op == RemoteDelete || c.Op == RemoteNewer || c.Op == RemoteRevert {
			changes = append(changes, c)
		}
	}
	for _, r := range resolved {
		switch r.Resolution {
		case ResolveAcceptRemote:
			changes = append(changes, r.Conflict.Remote)
		case ResolveBaselineOnly:
			d.applyBaselineOnly(r)
		}
	}

	return d.execute(ctx, changes, "Pull", d.applyRemoteChange)
}

// Push applies every Local* change to the remote and updates the baseline
// to match.
func (d *Driver) Push(ctx context.Context) error {
	diff, err := d.Status(ctx)
	if err != nil {
		return err
	}

	resolved, err := Resolve(diff, d.Prompt)
	if err != nil {
		return err
	}

	var changes []Change
	for _, c := range diff.Changes {
		if c.Op == LocalAdded || c.Op == LocalDelete || c.Op == LocalNewer || c.Op == LocalRevert {
			changes = append(changes, c)
		}
	}
	for _, r := range resolved {
		switch r.Resolution {
		case ResolveAcceptLocal:
			changes = append(changes, r.Conflict.Local)
		case ResolveBaselineOnly:
			d.applyBaselineOnly(r)
		}
	}

	return d.execute(ctx, changes, "Push", d.applyLocalChange)
}

// Sync runs Pull then Push against a single shared diff and remote-tree
// fetch: every change that doesn't belong to the resolved conflict set
// moves in its native direction, and the baseline converges either way.
func (d *Driver) Sync(ctx context.Context) error {
	diff, err := d.Status(ctx)
	if err != nil {
		return err
	}

	resolved, err := Resolve(diff, d.Prompt)
	if err != nil {
		return err
	}

	var toRemote, toLocal []Change
	for _, c := range diff.Changes {
		switch c.Op {
		case LocalAdded, LocalDelete, LocalNewer, LocalRevert:
			toRemote = append(toRemote, c)
		case RemoteAdded, RemoteDelete, RemoteNewer, RemoteRevert:
			toLocal = append(toLocal, c)
		}
	}
	for _, r := range resolved {
		switch r.Resolution {
		case ResolveAcceptLocal:
			toRemote = append(toRemote, r.Conflict.Local)
		case ResolveAcceptRemote:
			toLocal = append(toLocal, r.Conflict.Remote)
		case ResolveBaselineOnly:
			d.applyBaselineOnly(r)
		}
	}

	if err := d.execute(ctx, toLocal, "Pull", d.applyRemoteChange); err != nil {
		return err
	}
	return d.execute(ctx, toRemote, "Push", d.applyLocalChange)
}

// Clone runs a specialized pull into a freshly created, empty local
// directory with an empty baseline: every change the diff produces must be
// RemoteAdded (spec.md §4.5); anything else means the directory wasn't
// actually empty, which is a protocol error rather than something to
// silently paper over.
func (d *Driver) Clone(ctx context.Context) error {
	diff, err := d.Status(ctx)
	if err != nil {
		return err
	}
	if len(diff.Conflicts) != 0 {
		return protocolErr(fmt.Errorf("clone into %s produced %d conflicts against an empty baseline", d.LocalRoot, len(diff.Conflicts)))
	}
	for _, c := range diff.Changes {
		if c.Op != RemoteAdded {
			return protocolErr(fmt.Errorf("clone into %s produced a non-RemoteAdded change %s for %q", d.LocalRoot, c.Op, c.Path))
		}
	}

	return d.execute(ctx, diff.Changes, "Clone", d.applyRemoteChange)
}

type changeJob struct {
	id   uint64
	do   func() (interface{}, error)
	verb string
}

func (j changeJob) Id() interface{} { return j.id }
func (j changeJob) Do() (interface{}, error) {
	return j.do()
}

// execute runs apply over every change concurrently via semalim, reporting
// progress on a pb.ProgressBar and aggregating every per-change error
// rather than stopping at the first one.
func (d *Driver) execute(ctx context.Context, changes []Change, verb string, apply func(context.Context, Change) error) error {
	if len(changes) == 0 {
		return d.Baseline.Save()
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	n := d.concurrency()
	bar := pb.New64(totalSize(changes))
	bar.Start()
	defer bar.Finish()

	jobsChan := make(chan semalim.Job)
	go func() {
		defer close(jobsChan)
		for i, c := range changes {
			c := c
			jobsChan <- changeJob{
				id:   uint64(i),
				verb: verb,
				do: func() (interface{}, error) {
					if err := checkInterrupted(); err != nil {
						return nil, err
					}
					err := apply(ctx, c)
					bar.Add64(c.File.Size)
					return c.Path, err
				},
			}
		}
	}()

	results := semalim.Run(jobsChan, uint64(n))

	var errs []error
	for res := range results {
		if err := res.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", verb, res.Value(), err))
		}
	}

	if err := d.Baseline.Save(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return combineErrors(errs)
}

func totalSize(changes []Change) int64 {
	var total int64
	for _, c := range changes {
		total += c.File.Size
	}
	return total
}

func combineErrors(errs []error) error {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.Error()
	}
	return makeError(StatusGeneric, fmt.Errorf("%s", msg))
}

// splitParentName splits a slash-joined path into its parent directory
// path and base name, the shape the chunked-upload header protocol wants
// (spec.md §6.1).
func splitParentName(path string) (parent, name string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func (d *Driver) applyLocalChange(ctx context.Context, c Change) error {
	absPath := d.LocalRoot + "/" + c.Path

	if c.Op == LocalDelete {
		if err := d.Remote.Delete(ctx, c.Path); err != nil {
			return err
		}
		d.Baseline.Erase(c.File)
		return nil
	}

	f, err := os.Open(absPath)
	if err != nil {
		return ioErr(absPath, err)
	}
	defer f.Close()

	parent, name := splitParentName(c.Path)

	var resumeToken string
	if d.Resume != nil {
		if tok, found, err := d.Resume.Get(c.Path); err == nil && found {
			resumeToken = tok
		}
	}

	onToken := func(token string) {
		if d.Resume != nil {
			d.Resume.Put(c.Path, token)
		}
	}

	if _, err := d.Remote.Upload(ctx, name, parent, c.File.Size, c.File.ModTimeMs, f, resumeToken, onToken); err != nil {
		return err
	}
	if d.Resume != nil {
		d.Resume.Clear(c.Path)
	}
	d.Baseline.Upsert(c.File)
	return nil
}

// applyRemoteChange downloads or deletes according to c. A download first
// renames any existing local file aside with the outdatedSuffix so a
// failed transfer can be restored rather than leaving a half-written file
// masquerading as the real one (spec.md §7).
func (d *Driver) applyRemoteChange(ctx context.Context, c Change) error {
	absPath := d.LocalRoot + "/" + c.Path

	if c.Op == RemoteDelete {
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return ioErr(absPath, err)
		}
		d.Baseline.Erase(c.File)
		return nil
	}

	if err := os.MkdirAll(parentDir(absPath), 0755); err != nil {
		return ioErr(absPath, err)
	}

	outdatedPath := absPath + outdatedSuffix
	renamed := false
	if _, statErr := os.Stat(absPath); statErr == nil {
		if err := os.Rename(absPath, outdatedPath); err != nil {
			return ioErr(absPath, err)
		}
		renamed = true
	}

	if err := d.downloadTo(ctx, c, absPath); err != nil {
		os.Remove(absPath)
		if renamed {
			os.Rename(outdatedPath, absPath)
		}
		return err
	}

	if renamed {
		os.Remove(outdatedPath)
	}
	d.Baseline.Upsert(c.File)
	return nil
}

func (d *Driver) downloadTo(ctx context.Context, c Change, absPath string) error {
	f, err := os.Create(absPath)
	if err != nil {
		return ioErr(absPath, err)
	}
	defer f.Close()

	modTimeMs, err := d.Remote.Download(ctx, c.Path, f)
	if err != nil {
		return err
	}
	if modTimeMs > 0 {
		mt := time.UnixMilli(modTimeMs)
		os.Chtimes(absPath, mt, mt)
	}
	return nil
}

// applyBaselineOnly handles a ResolveBaselineOnly resolution: both sides
// already agree (or the diff engine determined nothing of substance
// changed), so nothing needs transferring — just the baseline catching up.
// The only resolver path reaching this today is equal-timestamp
// Added/Added, whose baseline entry comes from the remote side to match
// the original program's own `update_saved_state(remote.get_file())` call.
func (d *Driver) applyBaselineOnly(r Resolved) {
	local, remote := r.Conflict.Local, r.Conflict.Remote

	bothGone := (local.Op == LocalDelete) && (remote.Op == RemoteDelete)
	if bothGone {
		d.Baseline.Erase(local.File)
		return
	}

	d.Baseline.Upsert(remote.File)
}

func parentDir(absPath string) string {
	for i := len(absPath) - 1; i >= 0; i-- {
		if absPath[i] == '/' {
			return absPath[:i]
		}
	}
	return "."
}

// OpenConflictsInEditor spills every conflict it is given to a temp file and
// launches EditorPath on it when the set is large enough that prompting
// one-by-one would be impractical (spec.md §4.5).
func (d *Driver) OpenConflictsInEditor(conflicts []Conflict) error {
	if len(conflicts) <= conflictThreshold || d.EditorPath == "" {
		return nil
	}

	tmp, err := os.CreateTemp("", "fileshare-conflicts-*.txt")
	if err != nil {
		return ioErr("", err)
	}
	defer tmp.Close()

	for _, c := range conflicts {
		fmt.Fprintf(tmp, "%s [X] %s : %s\n", c.Local.Op, c.Remote.Op, c.Local.Path)
	}

	cmd := exec.Command(d.EditorPath, tmp.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
