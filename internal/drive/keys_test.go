package drive

import (
	"errors"
	"testing"
)

func TestKeyModel(t *testing.T) {
	tests := []struct {
		key     string
		folder  bool
		hidden  bool
		trashed bool
		name    string
	}{
		{"a/b.txt", false, false, false, "b.txt"},
		{"a/c/", true, false, false, "c"},
		{"trash/a/", true, false, true, "a"},
		{".metadata/stars.json", false, true, false, "stars.json"},
		{"top.pdf", false, false, false, "top.pdf"},
		{"", false, false, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isFolder(tt.key); got != tt.folder {
				t.Errorf("isFolder = %v, want %v", got, tt.folder)
			}
			if got := isHidden(tt.key); got != tt.hidden {
				t.Errorf("isHidden = %v, want %v", got, tt.hidden)
			}
			if got := isTrashed(tt.key); got != tt.trashed {
				t.Errorf("isTrashed = %v, want %v", got, tt.trashed)
			}
			if got := name(tt.key); got != tt.name {
				t.Errorf("name = %q, want %q", got, tt.name)
			}
		})
	}
}

func TestTrashKeys(t *testing.T) {
	if got := trashKeyOf("a/b.txt"); got != "trash/a/b.txt" {
		t.Errorf("trashKeyOf = %q", got)
	}

	got, err := restoredKeyOf("trash/a/b.txt")
	if err != nil || got != "a/b.txt" {
		t.Errorf("restoredKeyOf = %q, %v", got, err)
	}

	for _, bad := range []string{"a/b.txt", "trash/.metadata/sharing.json", "trash/.metadata/moves/x.json", "trash//.metadata/stars.json"} {
		if _, err := restoredKeyOf(bad); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("restoredKeyOf(%q): expected ErrInvalidArgument, got %v", bad, err)
		}
	}
}

func TestNormalizeFolder(t *testing.T) {
	for in, want := range map[string]string{
		"docs":   "docs/",
		"docs/":  "docs/",
		"a/b":    "a/b/",
		"":      "",
	} {
		if got := normalizeFolder(in); got != want {
			t.Errorf("normalizeFolder(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtension(t *testing.T) {
	for in, want := range map[string]string{
		"a/photo.JPG":   "jpg",
		"report.tar.gz": "gz",
		".hidden":       "",
		"noext":         "",
		"dir.v2/readme": "",
	} {
		if got := extension(in); got != want {
			t.Errorf("extension(%q) = %q, want %q", in, got, want)
		}
	}
}
