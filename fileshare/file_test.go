package fileshare

import "testing"

// TestWireRoundTrip exercises property 2 of spec.md §8:
// from_wire(to_wire(T)) == T for a tree shaped like what FromFilesystem
// would produce.
func TestWireRoundTrip(t *testing.T) {
	original := Directory{
		Files: []FileEntry{
			{Name: "plain.txt", Path: "plain.txt", Size: 12, ModTimeMs: 1000},
			{Name: "na me.txt", Path: "na me.txt", Size: 3, ModTimeMs: 2000},
		},
		Dirs: []Directory{
			{
				Name: "sub dir",
				Path: "sub dir",
				Files: []FileEntry{
					{Name: "nested.bin", Path: "sub dir/nested.bin", Size: 7, ModTimeMs: 3000},
				},
			},
		},
	}

	data, err := original.ToWire()
	if err != nil {
		t.Fatalf("ToWire returned error: %v", err)
	}

	back, err := FromWire(data)
	if err != nil {
		t.Fatalf("FromWire returned error: %v", err)
	}

	assertDirectoriesEqual(t, &original, &back)
}

func assertDirectoriesEqual(t *testing.T, want, got *Directory) {
	t.Helper()
	if want.Name != got.Name {
		t.Errorf("Name = %q, want %q", got.Name, want.Name)
	}
	if len(want.Files) != len(got.Files) {
		t.Fatalf("len(Files) = %d, want %d", len(got.Files), len(want.Files))
	}
	for i := range want.Files {
		wf, gf := want.Files[i], got.Files[i]
		if wf.Name != gf.Name || wf.Size != gf.Size || wf.ModTimeMs != gf.ModTimeMs || wf.Path != gf.Path {
			t.Errorf("Files[%d] = %+v, want %+v", i, gf, wf)
		}
	}
	if len(want.Dirs) != len(got.Dirs) {
		t.Fatalf("len(Dirs) = %d, want %d", len(got.Dirs), len(want.Dirs))
	}
	for i := range want.Dirs {
		assertDirectoriesEqual(t, &want.Dirs[i], &got.Dirs[i])
	}
}

func TestFromWire_MissingFileNameIsParseError(t *testing.T) {
	_, err := FromWire([]byte(`{"name":"","files":[{"timestamp":1,"size":1}]}`))
	if err == nil {
		t.Fatal("expected a parse error for a file with no name")
	}
	var e *Error
	if !asError(err, &e) || e.Code != StatusParseError {
		t.Errorf("err = %v, want a StatusParseError", err)
	}
}

func TestDirectory_AddFile_RejectsNameClashWithDirectory(t *testing.T) {
	d := Directory{Dirs: []Directory{{Name: "thing"}}}
	err := d.addFile(FileEntry{Name: "thing"})
	if err == nil {
		t.Fatal("expected an error adding a file whose name clashes with an existing directory")
	}
	var e *Error
	if !asError(err, &e) || e.Code != StatusProtocolError {
		t.Errorf("err = %v, want a StatusProtocolError", err)
	}
}

func TestDirectory_AddDir_RejectsNameClashWithFile(t *testing.T) {
	d := Directory{Files: []FileEntry{{Name: "thing"}}}
	err := d.addDir(Directory{Name: "thing"})
	if err == nil {
		t.Fatal("expected an error adding a directory whose name clashes with an existing file")
	}
	var e *Error
	if !asError(err, &e) || e.Code != StatusProtocolError {
		t.Errorf("err = %v, want a StatusProtocolError", err)
	}
}

func TestDirectory_FindFileAndFindDirectory(t *testing.T) {
	d := Directory{
		Files: []FileEntry{{Name: "a", Path: "a"}},
		Dirs:  []Directory{{Name: "b", Path: "b"}},
	}
	if _, ok := d.FindFile("a"); !ok {
		t.Error("expected to find file \"a\"")
	}
	if _, ok := d.FindFile("missing"); ok {
		t.Error("did not expect to find file \"missing\"")
	}
	if _, ok := d.FindDirectory("b"); !ok {
		t.Error("expected to find directory \"b\"")
	}
	if _, ok := d.FindDirectory("missing"); ok {
		t.Error("did not expect to find directory \"missing\"")
	}
}

func TestDirectory_FilesRecursive(t *testing.T) {
	d := Directory{
		Files: []FileEntry{{Name: "top", Path: "top"}},
		Dirs: []Directory{{
			Name:  "sub",
			Path:  "sub",
			Files: []FileEntry{{Name: "nested", Path: "sub/nested"}},
		}},
	}
	got := d.FilesRecursive()
	if len(got) != 2 {
		t.Fatalf("FilesRecursive returned %d entries, want 2", len(got))
	}
	if got[0].Name != "top" || got[1].Name != "nested" {
		t.Errorf("FilesRecursive order = %+v, want [top, nested]", got)
	}
}
