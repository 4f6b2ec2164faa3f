package skin_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"fmskin/bundle"
	"fmskin/config"
	"fmskin/patch"
	"fmskin/skin"
	"fmskin/state"
	"fmskin/uss"
)

func newEnv(t *testing.T) *state.LocalEnv {
	t.Helper()
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	return &state.LocalEnv{Cfg: cfg, Log: zaptest.NewLogger(t)}
}

// makeBundle writes bundle with:
//
//	FigmaStyleVariables  :root { --accent: #ff0000; }
//	Widgets              .title { color: var(--accent); width: 10px; }
func makeBundle(t *testing.T, dir string) string {
	t.Helper()

	vars := &uss.Sheet{Name: "FigmaStyleVariables"}
	root := vars.AddRule(":root")
	vars.AddProperty(root, "--accent", vars.Append(uss.ColorValue(uss.Color{R: 255, A: 255})))

	widgets := &uss.Sheet{Name: "Widgets"}
	title := widgets.AddRule(".title")
	widgets.AddProperty(title, "color", widgets.AppendReference("--accent"))
	widgets.AddProperty(title, "width", widgets.Append(uss.ScalarValue(10, uss.UnitPx)))

	b, err := bundle.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []*uss.Sheet{vars, widgets} {
		if err := b.Add(s); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, "ui.bundle")
	if err := b.Save(path, false); err != nil {
		t.Fatal(err)
	}
	b.Close()
	return path
}

func makeOverrides(t *testing.T, dir string) string {
	t.Helper()
	root := filepath.Join(dir, "overrides")
	files := map[string]string{
		"theme.css":   ":root { --accent: #00ff00; --brand-new: 4px; }",
		"Widgets.uss": ".title { width: 50%; padding: 2px 4px; }",
		"notes.txt":   "ignored",
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func openAsset(t *testing.T, path, asset string) *uss.Sheet {
	t.Helper()
	b, err := bundle.Open(path, nil)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", path, err)
	}
	defer b.Close()
	for _, s := range b.Assets() {
		if s.Name == asset {
			return s
		}
	}
	t.Fatalf("asset %s not found in %s", asset, path)
	return nil
}

func literal(t *testing.T, s *uss.Sheet, selector, property string) uss.Value {
	t.Helper()
	loc, ok := s.FindProperty(selector, property)
	if !ok {
		t.Fatalf("%s { %s } not found in %s", selector, property, s.Name)
	}
	v, ok := s.Literal(s.Prop(loc).Values[0])
	if !ok {
		t.Fatalf("%s { %s } is not literal", selector, property)
	}
	return v
}

func defaultOptions(env *state.LocalEnv) patch.Options {
	return patch.Options{
		PrimaryVariableAsset: env.Cfg.Patch.PrimaryVariableAsset,
		PrimarySelectorAsset: env.Cfg.Patch.PrimarySelectorAsset,
	}
}

func TestApply_OutDir(t *testing.T) {
	dir := t.TempDir()
	env := newEnv(t)
	src := makeBundle(t, dir)
	original, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")

	reports, err := skin.Apply(context.Background(), env, skin.Options{
		Overrides: makeOverrides(t, dir),
		Bundles:   []string{src},
		OutDir:    out,
		Patch:     defaultOptions(env),
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if got := strings.Join(reports[0].Changed(), ","); got != "FigmaStyleVariables,Widgets" {
		t.Errorf("changed assets = %s", got)
	}

	after, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(original, after) {
		t.Error("source bundle must stay untouched when output directory is given")
	}

	patched := filepath.Join(out, "ui.bundle")
	vars := openAsset(t, patched, "FigmaStyleVariables")
	if v := literal(t, vars, ":root", "--accent"); v != uss.ColorValue(uss.Color{G: 255, A: 255}) {
		t.Errorf("--accent = %s, want #00ff00", v)
	}
	if v := literal(t, vars, ":root", "--brand-new"); v != uss.ScalarValue(4, uss.UnitPx) {
		t.Errorf("--brand-new = %s, want 4px", v)
	}

	widgets := openAsset(t, patched, "Widgets")
	if v := literal(t, widgets, ".title", "width"); v != uss.ScalarValue(50, uss.UnitPercent) {
		t.Errorf("width = %s, want 50%%", v)
	}
	if v := literal(t, widgets, ".title", "padding-left"); v != uss.ScalarValue(4, uss.UnitPx) {
		t.Errorf("padding-left = %s, want 4px", v)
	}
	if len(widgets.Definitions("--brand-new")) != 0 {
		t.Error("new variable leaked into Widgets")
	}
}

func TestApply_InPlaceWithBackup(t *testing.T) {
	dir := t.TempDir()
	env := newEnv(t)
	src := makeBundle(t, dir)
	original, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	_, err = skin.Apply(context.Background(), env, skin.Options{
		Overrides: makeOverrides(t, dir),
		Bundles:   []string{src},
		Backup:    true,
		Patch:     defaultOptions(env),
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	backup, err := os.ReadFile(src + bundle.BackupSuffix)
	if err != nil {
		t.Fatalf("expected backup: %v", err)
	}
	if !bytes.Equal(original, backup) {
		t.Error("backup differs from original bundle")
	}
	widgets := openAsset(t, src, "Widgets")
	if v := literal(t, widgets, ".title", "width"); v != uss.ScalarValue(50, uss.UnitPercent) {
		t.Errorf("width = %s, want 50%%", v)
	}
}

func TestApply_DryRun(t *testing.T) {
	dir := t.TempDir()
	env := newEnv(t)
	src := makeBundle(t, dir)
	original, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")

	opts := defaultOptions(env)
	opts.DryRun = true
	reports, err := skin.Apply(context.Background(), env, skin.Options{
		Overrides: makeOverrides(t, dir),
		Bundles:   []string{src},
		OutDir:    out,
		DryRun:    true,
		Patch:     opts,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(reports[0].Changed()) == 0 {
		t.Error("dry run must still report changes")
	}
	ar, ok := reports[0].Asset("Widgets")
	if !ok || ar.Before == ar.After || !strings.Contains(ar.After, "width: 50%;") {
		t.Errorf("unexpected dry-run asset report %+v", ar)
	}

	after, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(original, after) {
		t.Error("dry run modified bundle")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("dry run created output directory")
	}
}

func TestApply_ScanCache(t *testing.T) {
	dir := t.TempDir()
	env := newEnv(t)
	env.Cfg.Cache.Enable = true
	env.Cfg.Cache.Path = filepath.Join(dir, "scan.db")
	src := makeBundle(t, dir)
	overridesDir := makeOverrides(t, dir)

	for range 2 {
		if _, err := skin.Apply(context.Background(), env, skin.Options{
			Overrides: overridesDir,
			Bundles:   []string{src},
			Patch:     defaultOptions(env),
		}); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	if _, err := os.Stat(env.Cfg.Cache.Path); err != nil {
		t.Errorf("expected scan cache database: %v", err)
	}
	// last connection closed, write-ahead log folded back into database
	if _, err := os.Stat(env.Cfg.Cache.Path + "-wal"); !os.IsNotExist(err) {
		t.Errorf("scan cache was left open: %v", err)
	}

	// second run found everything already in place
	vars := openAsset(t, src, "FigmaStyleVariables")
	if n := len(vars.Definitions("--brand-new")); n != 1 {
		t.Errorf("--brand-new defined %d times, want 1", n)
	}
}

func TestApply_DebugReport(t *testing.T) {
	dir := t.TempDir()
	env := newEnv(t)
	dst := filepath.Join(dir, "report.zip")
	rpt, err := (&config.ReporterConfig{Destination: dst}).Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	env.Rpt = rpt

	if _, err := skin.Apply(context.Background(), env, skin.Options{
		Overrides: makeOverrides(t, dir),
		Bundles:   []string{makeBundle(t, dir)},
		OutDir:    filepath.Join(dir, "out"),
		Patch:     defaultOptions(env),
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := rpt.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := zip.OpenReader(dst)
	if err != nil {
		t.Fatalf("unable to open report: %v", err)
	}
	defer r.Close()
	names := make(map[string]bool)
	for _, f := range r.File {
		names[f.Name] = true
	}
	for _, want := range []string{
		"overrides/theme.css",
		"overrides/Widgets.uss",
		"uss/ui/widgets.before.uss",
		"uss/ui/widgets.after.uss",
		"uss/ui/changes.txt",
	} {
		if !names[want] {
			t.Errorf("report misses %s, has %v", want, names)
		}
	}
}

func TestApply_MissingInputs(t *testing.T) {
	dir := t.TempDir()
	env := newEnv(t)

	if _, err := skin.Apply(context.Background(), env, skin.Options{
		Overrides: filepath.Join(dir, "missing"),
		Bundles:   []string{filepath.Join(dir, "ui.bundle")},
	}); err == nil {
		t.Error("expected error for missing overrides")
	}
	if _, err := skin.Apply(context.Background(), env, skin.Options{
		Overrides: makeOverrides(t, dir),
		Bundles:   []string{filepath.Join(dir, "missing.bundle")},
		Patch:     defaultOptions(env),
	}); err == nil {
		t.Error("expected error for missing bundle")
	}
}

func TestScanBundles(t *testing.T) {
	dir := t.TempDir()
	env := newEnv(t)
	src := makeBundle(t, dir)

	var buf bytes.Buffer
	if err := skin.ScanBundles(context.Background(), env, &buf, []string{src}); err != nil {
		t.Fatalf("ScanBundles() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"2 stylesheet assets",
		"FigmaStyleVariables: 1 variables, 1 selectors",
		"    variables (1):\n      --accent\n",
		"  Widgets: 0 variables, 1 selectors\n",
		"    selectors (1):\n      .title\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("scan output missing %q:\n%s", want, out)
		}
	}
}
