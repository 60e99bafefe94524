package filter

import (
	"errors"
	"path/filepath"
	"testing"
)

func mustNew(t *testing.T, opts ...Option) *Filter {
	t.Helper()
	f, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func TestNormalizeExtensions(t *testing.T) {
	got := NormalizeExtensions([]string{"TXT", ".xml", " prj ", "", ".", ".txt"})
	want := []string{".txt", ".xml", ".prj"}

	if len(got) != len(want) {
		t.Fatalf("NormalizeExtensions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeExtensions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMatch(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "w")
	backups := filepath.Join(root, "backups")

	f := mustNew(t,
		WithExtensions(".txt", ".xml"),
		WithExclude("~$*", "*.tmp.txt"),
		WithIgnoredRoots(backups, ""),
	)

	tests := []struct {
		name  string
		path  string
		isDir bool
		want  Verdict
	}{
		{name: "monitored txt", path: filepath.Join(root, "a.txt"), want: Accept},
		{name: "case insensitive", path: filepath.Join(root, "NOTES.TXT"), want: Accept},
		{name: "xml", path: filepath.Join(root, "sub", "cfg.xml"), want: Accept},
		{name: "log rejected", path: filepath.Join(root, "app.log"), want: RejectExtension},
		{name: "no extension", path: filepath.Join(root, "README"), want: RejectExtension},
		{name: "directory", path: filepath.Join(root, "dir.txt"), isDir: true, want: RejectDirectory},
		{name: "office lock file", path: filepath.Join(root, "~$report.txt"), want: RejectExcluded},
		{name: "temp save", path: filepath.Join(root, "a.tmp.txt"), want: RejectExcluded},
		{name: "own backup root", path: filepath.Join(backups, "a", "a_20250101_000000_bob.txt"), want: RejectIgnoredRoot},
		{name: "sibling with shared prefix", path: filepath.Join(root, "backups2", "b.txt"), want: Accept},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Match(tt.path, tt.isDir); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestMatch_EmptyExtensionSetMatchesNothing(t *testing.T) {
	f := mustNew(t)
	if got := f.Match("/w/a.txt", false); got != RejectExtension {
		t.Errorf("Match() = %v, want %v", got, RejectExtension)
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(WithExclude("[unclosed"))
	if !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("New() error = %v, want ErrInvalidPattern", err)
	}
}

func TestIsUnder(t *testing.T) {
	tests := []struct {
		path, root string
		want       bool
	}{
		{"/a/b", "/a", true},
		{"/a", "/a", true},
		{"/ab", "/a", false},
		{"/a/../b", "/a", false},
	}
	for _, tt := range tests {
		if got := IsUnder(tt.path, tt.root); got != tt.want {
			t.Errorf("IsUnder(%q, %q) = %v, want %v", tt.path, tt.root, got, tt.want)
		}
	}
}

func TestVerdictString(t *testing.T) {
	if Accept.String() != "accepted" || RejectExtension.String() != "extension" {
		t.Error("unexpected verdict names")
	}
}
