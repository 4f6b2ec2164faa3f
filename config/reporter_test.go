package config

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func readArchive(t *testing.T, name string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(name)
	if err != nil {
		t.Fatalf("unable to open report: %v", err)
	}
	defer zr.Close()

	files := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("unable to open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		files[f.Name] = string(data)
	}
	return files
}

func TestReport_StoreDataAndClose(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "report.zip")
	conf := ReporterConfig{Destination: dst}
	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	r.StoreData("uss/colors.before.uss", []byte("a"))
	r.StoreData("uss/colors.before.uss", []byte("b"))

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	files := readArchive(t, dst)
	if _, ok := files["MANIFEST"]; !ok {
		t.Error("report has no MANIFEST")
	}
	if files["uss/colors.before.uss"] != "a" {
		t.Errorf("first stored entry = %q, want a", files["uss/colors.before.uss"])
	}
	// duplicate name must have been versioned, not dropped
	if len(files) != 3 {
		t.Errorf("expected 3 files in report, got %d", len(files))
	}
}

func TestReport_StoreCopyRemovesTemporaryCopy(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "theme.css"), []byte(":root { --x: #fff; }"), 0644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "report.zip")
	r, err := (&ReporterConfig{Destination: dst}).Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := r.StoreCopy("overrides", src); err != nil {
		t.Fatalf("StoreCopy() error = %v", err)
	}
	copied := r.entries["overrides"].actual

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(copied); !os.IsNotExist(err) {
		t.Errorf("temporary copy %s was not removed", copied)
	}
	// the original must survive
	if _, err := os.Stat(filepath.Join(src, "theme.css")); err != nil {
		t.Errorf("original file is gone: %v", err)
	}

	files := readArchive(t, dst)
	if files["overrides/theme.css"] != ":root { --x: #fff; }" {
		t.Errorf("copied file content = %q", files["overrides/theme.css"])
	}
}

func TestReport_NilIsSafe(t *testing.T) {
	var r *Report
	r.Store("x", "y")
	r.StoreData("x", nil)
	if err := r.StoreCopy("x", "y"); err != nil {
		t.Errorf("StoreCopy on nil report = %v", err)
	}
	if r.Name() != "" {
		t.Error("nil report should have empty name")
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil report = %v", err)
	}
}

func TestReport_ConcurrentStoreData(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "report.zip")
	r, err := (&ReporterConfig{Destination: dst}).Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.StoreData(filepath.Join("asset", string(rune('a'+i))), []byte{byte(i) + 1})
		}()
	}
	wg.Wait()

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := len(readArchive(t, dst)); got != 17 {
		t.Errorf("expected 17 files (16 + MANIFEST), got %d", got)
	}
}
