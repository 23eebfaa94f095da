package fileshare

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"sort"
)

// FileMarkerDir is the sibling marker directory that identifies the root of
// a working tree (spec.md §4.6). It is always excluded from local snapshots.
const FileMarkerDir = ".fileshare"

// IgnoreFileName, when present at the repository root, contributes one
// literal excluded name per non-empty line (spec.md §9's Open Question is
// resolved here: literal names, not globs, matched against the immediate
// child name only).
const IgnoreFileName = ".fileshareignore"

// FileEntry is a single file's identity and change-detection attributes.
// Path is computed once, at construction, from the parent directory's path
// and the entry's own name and is never recovered from a stored parent
// back-reference (spec.md §9 flags that back-reference pattern; this
// eliminates it by keeping Path immutable data on the value itself).
type FileEntry struct {
	Name      string
	Size      int64
	ModTimeMs int64
	Path      string
}

// Directory is an immutable, rooted, ordered collection of child files and
// child directories. The zero value is a valid empty root directory.
type Directory struct {
	Name  string
	Path  string
	Files []FileEntry
	Dirs  []Directory
}

func joinPath(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return parentPath + "/" + name
}

// NewRoot returns an empty root directory.
func NewRoot() Directory {
	return Directory{}
}

func newChildDir(parent *Directory, name string) Directory {
	return Directory{Name: name, Path: joinPath(parent.Path, name)}
}

func newChildFile(parent *Directory, name string, size, modTimeMs int64) FileEntry {
	return FileEntry{Name: name, Size: size, ModTimeMs: modTimeMs, Path: joinPath(parent.Path, name)}
}

// FindFile does an O(n) scan for a direct child file named name.
func (d *Directory) FindFile(name string) (*FileEntry, bool) {
	for i := range d.Files {
		if d.Files[i].Name == name {
			return &d.Files[i], true
		}
	}
	return nil, false
}

// FindDirectory does an O(n) scan for a direct child directory named name.
func (d *Directory) FindDirectory(name string) (*Directory, bool) {
	for i := range d.Dirs {
		if d.Dirs[i].Name == name {
			return &d.Dirs[i], true
		}
	}
	return nil, false
}

// FilesRecursive enumerates every file under the tree, files of this
// directory first, then each subdirectory's files in turn.
func (d *Directory) FilesRecursive() []FileEntry {
	files := make([]FileEntry, 0, len(d.Files))
	files = append(files, d.Files...)
	for i := range d.Dirs {
		files = append(files, d.Dirs[i].FilesRecursive()...)
	}
	return files
}

func percentEncode(s string) string {
	return url.QueryEscape(s)
}

func percentDecode(s string) (string, error) {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return "", err
	}
	return decoded, nil
}

// addFile and addDir both reject a file/directory name clash at the same
// level, used by FromWire and FromFilesystem alike (spec.md §9's third Open
// Question, resolved here as a rejection rather than silent coexistence).
func (d *Directory) addFile(f FileEntry) error {
	if _, ok := d.FindDirectory(f.Name); ok {
		return protocolErr(fmt.Errorf("%q is both a file and a directory under %q", f.Name, d.Path))
	}
	if _, ok := d.FindFile(f.Name); ok {
		return protocolErr(fmt.Errorf("duplicate file %q under %q", f.Name, d.Path))
	}
	d.Files = append(d.Files, f)
	return nil
}

func (d *Directory) addDir(sub Directory) error {
	if _, ok := d.FindFile(sub.Name); ok {
		return protocolErr(fmt.Errorf("%q is both a file and a directory under %q", sub.Name, d.Path))
	}
	if _, ok := d.FindDirectory(sub.Name); ok {
		return protocolErr(fmt.Errorf("duplicate directory %q under %q", sub.Name, d.Path))
	}
	d.Dirs = append(d.Dirs, sub)
	return nil
}

// FromFilesystem recursively enumerates path into a Tree, excluding
// FileMarkerDir and any literal name listed in a root-level IgnoreFileName.
// Zero-byte files are treated as absent (spec.md §3). Interruptible per
// spec.md §5.
func FromFilesystem(rootPath string) (Directory, error) {
	excluded, err := loadIgnoreSet(rootPath)
	if err != nil {
		return Directory{}, err
	}
	return fromFilesystemInternal(rootPath, Directory{}, excluded)
}

func loadIgnoreSet(rootPath string) (map[string]bool, error) {
	excluded := map[string]bool{FileMarkerDir: true}

	data, err := os.ReadFile(path.Join(rootPath, IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return excluded, nil
		}
		return nil, ioErr(rootPath, err)
	}

	line := make([]byte, 0, 64)
	flush := func() {
		if len(line) > 0 {
			excluded[string(line)] = true
		}
		line = line[:0]
	}
	for _, b := range data {
		if b == '\n' || b == '\r' {
			flush()
			continue
		}
		line = append(line, b)
	}
	flush()
	return excluded, nil
}

func fromFilesystemInternal(absPath string, dir Directory, excluded map[string]bool) (Directory, error) {
	if err := checkInterrupted(); err != nil {
		return Directory{}, err
	}

	entries, err := os.ReadDir(absPath)
	if err != nil {
		return Directory{}, ioErr(absPath, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if excluded[name] {
			continue
		}

		childAbs := path.Join(absPath, name)

		if entry.IsDir() {
			sub := Directory{Name: name, Path: joinPath(dir.Path, name)}
			sub, err := fromFilesystemInternal(childAbs, sub, excluded)
			if err != nil {
				return Directory{}, err
			}
			if err := dir.addDir(sub); err != nil {
				return Directory{}, err
			}
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return Directory{}, ioErr(childAbs, err)
		}

		if info.Size() == 0 {
			// Zero-byte files are treated as absent (spec.md §3).
			continue
		}

		f := FileEntry{Name: name, Size: info.Size(), ModTimeMs: info.ModTime().UnixMilli(), Path: joinPath(dir.Path, name)}
		if err := dir.addFile(f); err != nil {
			return Directory{}, err
		}
	}

	return dir, nil
}

type wireFile struct {
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
	Size      int64  `json:"size"`
}

type wireDir struct {
	Name        string     `json:"name"`
	Files       []wireFile `json:"files,omitempty"`
	Directories []wireDir  `json:"directories,omitempty"`
}

// FromWire parses a nested {name, files, directories} JSON payload into a
// Tree. Names are percent-decoded; missing files/directories are treated as
// empty; absent timestamp/size default to 0.
func FromWire(data []byte) (Directory, error) {
	var wd wireDir
	if err := json.Unmarshal(data, &wd); err != nil {
		return Directory{}, parseErr(err)
	}
	return fromWireInternal(wd, &Directory{})
}

func fromWireInternal(wd wireDir, parent *Directory) (Directory, error) {
	if err := checkInterrupted(); err != nil {
		return Directory{}, err
	}
	if wd.Name == "" && parent.Path != "" {
		return Directory{}, parseErr(fmt.Errorf("missing directory name in wire payload"))
	}

	name, err := percentDecode(wd.Name)
	if err != nil {
		return Directory{}, parseErr(err)
	}

	dir := newChildDir(parent, name)

	for _, wf := range wd.Files {
		if wf.Name == "" {
			return Directory{}, parseErr(fmt.Errorf("missing file name in wire payload"))
		}
		fname, err := percentDecode(wf.Name)
		if err != nil {
			return Directory{}, parseErr(err)
		}
		f := newChildFile(&dir, fname, wf.Size, wf.Timestamp)
		if err := dir.addFile(f); err != nil {
			return Directory{}, err
		}
	}

	for _, wsub := range wd.Directories {
		sub, err := fromWireInternal(wsub, &dir)
		if err != nil {
			return Directory{}, err
		}
		if err := dir.addDir(sub); err != nil {
			return Directory{}, err
		}
	}

	return dir, nil
}

// ToWire serializes the tree back to the wire JSON shape. Only name,
// timestamp, size are written per file, names percent-encoded.
func (d *Directory) ToWire() ([]byte, error) {
	wd := toWireInternal(d)
	data, err := json.Marshal(wd)
	if err != nil {
		return nil, parseErr(err)
	}
	return data, nil
}

func toWireInternal(d *Directory) wireDir {
	wd := wireDir{Name: percentEncode(d.Name)}
	for _, f := range d.Files {
		wd.Files = append(wd.Files, wireFile{
			Name:      percentEncode(f.Name),
			Timestamp: f.ModTimeMs,
			Size:      f.Size,
		})
	}
	for i := range d.Dirs {
		wd.Directories = append(wd.Directories, toWireInternal(&d.Dirs[i]))
	}
	return wd
}
