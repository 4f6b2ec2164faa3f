package bundle_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"fmskin/bundle"
	"fmskin/uss"
)

func sampleSheet(name string) *uss.Sheet {
	s := &uss.Sheet{Name: name}
	root := s.AddRule(":root")
	s.AddProperty(root, "--accent", s.Append(uss.ColorValue(uss.Color{R: 10, G: 20, B: 30, A: 255})))
	s.AddProperty(root, "--gap", s.Append(uss.ScalarValue(4, uss.UnitPx)))
	title := s.AddRule(".title")
	s.AddProperty(title, "color", s.AppendReference("--accent"), s.Append(uss.ColorValue(uss.Color{A: 128})))
	s.AddProperty(title, "flex-grow", s.Append(uss.ScalarValue(1.5, uss.UnitNone)))
	s.AddProperty(title, "-unity-font-style", s.Append(uss.KeywordValue("bold")))
	s.AddProperty(title, "-unity-font", s.Append(uss.ResourceValue("fonts/Inter.ttf")))
	return s
}

func writeBundle(t *testing.T, dir string, sheets ...*uss.Sheet) string {
	t.Helper()

	ctx, err := bundle.New(zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := ctx.AddOpaque([]byte("opaque-before")); err != nil {
		t.Fatalf("AddOpaque() error = %v", err)
	}
	for _, s := range sheets {
		if err := ctx.Add(s); err != nil {
			t.Fatalf("Add(%s) error = %v", s.Name, err)
		}
	}
	if err := ctx.AddOpaque([]byte("opaque-after")); err != nil {
		t.Fatalf("AddOpaque() error = %v", err)
	}
	path := filepath.Join(dir, "ui.bundle")
	if err := ctx.Save(path, false); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := ctx.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return path
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	orig := sampleSheet("FigmaStyleVariables")
	path := writeBundle(t, dir, sampleSheet("Widgets10"), orig, sampleSheet("Widgets2"))

	ctx, err := bundle.Open(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ctx.Close()

	if ctx.ID() == "" {
		t.Error("expected container id to survive round trip")
	}
	assets := ctx.Assets()
	var names []string
	for _, a := range assets {
		names = append(names, a.Name)
	}
	if got := strings.Join(names, ","); got != "FigmaStyleVariables,Widgets2,Widgets10" {
		t.Errorf("Assets() order = %s", got)
	}

	got := assets[0]
	if got.String() != orig.String() {
		t.Errorf("decoded sheet differs:\n%s\nwant:\n%s", got.String(), orig.String())
	}
	if len(got.Colors) != len(orig.Colors) || len(got.Strings) != len(orig.Strings) ||
		len(got.Floats) != len(orig.Floats) || len(got.Dimensions) != len(orig.Dimensions) {
		t.Errorf("array sizes differ: got %d/%d/%d/%d", len(got.Colors), len(got.Floats), len(got.Dimensions), len(got.Strings))
	}
	if ctx.Dirty() {
		t.Error("freshly opened bundle must not be dirty")
	}
}

func TestCommitAndSave(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, sampleSheet("A"), sampleSheet("B"))

	ctx, err := bundle.Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	sheet := ctx.Assets()[0]
	sheet.AddProperty(sheet.AddRule(".added"), "width", sheet.Append(uss.ScalarValue(50, uss.UnitPercent)))
	if err := ctx.Commit(sheet); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if !ctx.Dirty() {
		t.Error("expected dirty bundle after commit")
	}
	if err := ctx.Save("", true); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ctx.Dirty() {
		t.Error("expected clean bundle after save")
	}
	ctx.Close()

	if _, err := os.Stat(path + bundle.BackupSuffix); err != nil {
		t.Errorf("expected backup file: %v", err)
	}

	reopened, err := bundle.Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open() after save error = %v", err)
	}
	defer reopened.Close()
	a := reopened.Assets()[0]
	if _, ok := a.FindProperty(".added", "width"); !ok {
		t.Error("committed change was not saved")
	}
	if !strings.Contains(a.String(), "width: 50%;") {
		t.Errorf("unexpected saved sheet:\n%s", a.String())
	}

	backup, err := bundle.Open(path+bundle.BackupSuffix, zap.NewNop())
	if err != nil {
		t.Fatalf("Open() backup error = %v", err)
	}
	defer backup.Close()
	if _, ok := backup.Assets()[0].FindProperty(".added", "width"); ok {
		t.Error("backup must hold the original content")
	}
}

func TestSaveKeepsFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := t.TempDir()
	path := writeBundle(t, dir, sampleSheet("A"))
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("new bundle mode = %v, want 0644", info.Mode().Perm())
	}
	if err := os.Chmod(path, 0664); err != nil {
		t.Fatal(err)
	}

	ctx, err := bundle.Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ctx.Close()
	out := filepath.Join(dir, "out", "patched.bundle")
	for _, dst := range []string{"", out} {
		if err := ctx.Save(dst, false); err != nil {
			t.Fatalf("Save(%q) error = %v", dst, err)
		}
	}

	for _, p := range []string{path, out} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0664 {
			t.Errorf("%s mode = %v, want 0664", p, info.Mode().Perm())
		}
	}
}

func TestOpaqueEntitiesPreserved(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, sampleSheet("A"))

	ctx, err := bundle.Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	sheet := ctx.Assets()[0]
	if err := ctx.Commit(sheet); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	out := filepath.Join(dir, "out", "ui.bundle")
	if err := ctx.Save(out, false); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	ctx.Close()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	cont, err := bundle.ReadContainer(data)
	if err != nil {
		t.Fatalf("ReadContainer() error = %v", err)
	}
	var opaque [][]byte
	for _, ent := range cont.Entities {
		if ent.Type == bundle.EntityOpaque {
			opaque = append(opaque, ent.Data)
		}
	}
	if len(opaque) != 2 || !bytes.Equal(opaque[0], []byte("opaque-before")) || !bytes.Equal(opaque[1], []byte("opaque-after")) {
		t.Errorf("opaque entities changed: %q", opaque)
	}
	if len(cont.Entities) != 3 || cont.Entities[1].Type != bundle.EntityStylesheet {
		t.Errorf("entity order changed: %d entities", len(cont.Entities))
	}
}

func TestReadContainer_Errors(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, sampleSheet("A"))
	good, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	badSig := bytes.Clone(good)
	copy(badSig, "XXXX")

	badPayload := bytes.Clone(good)
	badPayload[len(badPayload)-1] ^= 0xFF

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"too small", good[:10], "too small"},
		{"signature", badSig, "wrong signature"},
		{"checksum", badPayload, "checksum"},
		{"truncated", good[:len(good)-5], "checksum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bundle.ReadContainer(tt.data)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ReadContainer() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestContext_Errors(t *testing.T) {
	ctx, err := bundle.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.Add(sampleSheet("A")); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Add(sampleSheet("A")); err == nil {
		t.Error("expected duplicate asset error")
	}
	if err := ctx.Commit(sampleSheet("Missing")); err == nil {
		t.Error("expected error committing unknown asset")
	}
	if err := ctx.Save("", false); err == nil {
		t.Error("expected error saving bundle without destination")
	}
	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Commit(sampleSheet("A")); !errors.Is(err, bundle.ErrClosed) {
		t.Errorf("Commit() after Close error = %v, want ErrClosed", err)
	}
	if _, err := bundle.Open(filepath.Join(t.TempDir(), "missing.bundle"), nil); err == nil {
		t.Error("expected error opening missing bundle")
	}
}
