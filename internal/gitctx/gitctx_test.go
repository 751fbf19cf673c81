package gitctx

import (
	"strings"
	"testing"
)

const twoFileDiff = `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
+import "fmt"
diff --git a/util.go b/util.go
--- a/util.go
+++ b/util.go
@@ -5,3 +5,4 @@
+func helper() {}
`

func TestExtractFiles(t *testing.T) {
	files := extractFiles(twoFileDiff)
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0] != "main.go" {
		t.Errorf("files[0] = %q, want %q", files[0], "main.go")
	}
	if files[1] != "util.go" {
		t.Errorf("files[1] = %q, want %q", files[1], "util.go")
	}
}

func TestExtractFiles_Dedup(t *testing.T) {
	diff := `+++ b/main.go
+++ b/main.go
`
	files := extractFiles(diff)
	if len(files) != 1 {
		t.Errorf("got %d files, want 1 (should dedup)", len(files))
	}
}

func TestSplitChanges(t *testing.T) {
	changes := SplitChanges(twoFileDiff)
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	if changes[0].Path != "main.go" {
		t.Errorf("changes[0].Path = %q, want main.go", changes[0].Path)
	}
	if changes[1].Path != "util.go" {
		t.Errorf("changes[1].Path = %q, want util.go", changes[1].Path)
	}
	if !strings.HasPrefix(changes[1].Section, "diff --git a/util.go") {
		t.Errorf("changes[1].Section starts with %q", changes[1].Section[:30])
	}
}

func TestSplitChanges_DeletedFile(t *testing.T) {
	diff := `diff --git a/old.go b/old.go
deleted file mode 100644
--- a/old.go
+++ /dev/null
@@ -1,3 +0,0 @@
-package old
`
	changes := SplitChanges(diff)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	if changes[0].Path != "old.go" {
		t.Errorf("deleted file path = %q, want old.go", changes[0].Path)
	}
}

func TestSplitChanges_RenamedFileUsesNewPath(t *testing.T) {
	diff := `diff --git a/old_name.go b/new_name.go
similarity index 90%
rename from old_name.go
rename to new_name.go
--- a/old_name.go
+++ b/new_name.go
@@ -1,3 +1,3 @@
 package pkg
`
	changes := SplitChanges(diff)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	if changes[0].Path != "new_name.go" {
		t.Errorf("renamed file path = %q, want new_name.go", changes[0].Path)
	}
}

func TestSplitChanges_Empty(t *testing.T) {
	if changes := SplitChanges(""); changes != nil {
		t.Errorf("empty diff should yield nil, got %d changes", len(changes))
	}
}

func TestAssemble(t *testing.T) {
	changes := SplitChanges(twoFileDiff)
	joined := Assemble(changes)
	if !strings.Contains(joined, "diff --git a/main.go") {
		t.Error("assembled diff should contain main.go section")
	}
	if !strings.Contains(joined, "diff --git a/util.go") {
		t.Error("assembled diff should contain util.go section")
	}
}

func TestFilterExcluded(t *testing.T) {
	diff := `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
+import "fmt"
diff --git a/vendor/lib.go b/vendor/lib.go
--- a/vendor/lib.go
+++ b/vendor/lib.go
@@ -1,3 +1,4 @@
+package lib
`
	kept := filterExcluded(SplitChanges(diff), []string{"vendor/**"})
	result := Assemble(kept)
	if strings.Contains(result, "vendor/lib.go") {
		t.Error("vendor/lib.go should be excluded")
	}
	if !strings.Contains(result, "main.go") {
		t.Error("main.go should be kept")
	}
}

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		path     string
		patterns []string
		want     bool
	}{
		{"vendor/lib.go", []string{"vendor/**"}, true},
		{"main.go", []string{"vendor/**"}, false},
		{"foo.gen.go", []string{"**/*.gen.go"}, true},
		{"pkg/foo.gen.go", []string{"**/*.gen.go"}, true},
		{"dist/bundle.js", []string{"**/dist/**"}, true},
		{"main.go", []string{"*.go"}, true},
	}
	for _, tt := range tests {
		got := MatchesAny(tt.path, tt.patterns)
		if got != tt.want {
			t.Errorf("MatchesAny(%q, %v) = %v, want %v", tt.path, tt.patterns, got, tt.want)
		}
	}
}

func TestFilterFileList(t *testing.T) {
	files := []string{"main.go", "go.sum", "pkg/util.go"}
	kept := filterFileList(files, []string{"go.sum"})
	if len(kept) != 2 {
		t.Fatalf("got %d files, want 2", len(kept))
	}
	for _, f := range kept {
		if f == "go.sum" {
			t.Error("go.sum should be filtered out")
		}
	}
}
