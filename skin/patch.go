// Package skin implements program commands: applying override stylesheets to
// skin bundles and scanning bundles for stylesheet assets.
package skin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fmskin/bundle"
	"fmskin/overrides"
	"fmskin/patch"
	"fmskin/scancache"
	"fmskin/state"
	"fmskin/uss"
)

// Options describe single patch invocation.
type Options struct {
	Overrides string   // directory (or single file) with override stylesheets
	Bundles   []string // bundles to patch
	OutDir    string   // where to write patched bundles, empty - in place
	Backup    bool
	DryRun    bool
	NoCache   bool
	Patch     patch.Options
}

func Run(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("skin")

	if cmd.Args().Len() < 2 {
		return errors.New("overrides location and at least one bundle must be specified")
	}

	env.DryRun = cmd.Bool("dry-run")
	env.NoScanCache = cmd.Bool("no-scan-cache")
	env.OutDir = cmd.String("out")

	opts := Options{
		Overrides: cmd.Args().Get(0),
		Bundles:   cmd.Args().Slice()[1:],
		OutDir:    env.OutDir,
		Backup:    env.Cfg.Patch.Backup || cmd.Bool("backup"),
		DryRun:    env.DryRun,
		NoCache:   env.NoScanCache,
		Patch: patch.Options{
			PrimaryVariableAsset: env.Cfg.Patch.PrimaryVariableAsset,
			PrimarySelectorAsset: env.Cfg.Patch.PrimarySelectorAsset,
			Workers:              env.Cfg.Patch.Workers,
			DryRun:               env.DryRun,
		},
	}
	if v := cmd.String("primary-vars"); v != "" {
		opts.Patch.PrimaryVariableAsset = v
	}
	if v := cmd.String("primary-selectors"); v != "" {
		opts.Patch.PrimarySelectorAsset = v
	}

	log.Info("Patching starting",
		zap.String("overrides", opts.Overrides),
		zap.Strings("bundles", opts.Bundles),
		zap.String("destination", opts.OutDir),
		zap.Bool("dry-run", opts.DryRun))
	defer func(start time.Time) {
		log.Info("Patching completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	_, err := Apply(ctx, env, opts)
	return err
}

// Apply patches every bundle with collected overrides. Bundles are processed
// one after another, assets inside a bundle are patched in parallel. Reports
// are returned in bundle order.
func Apply(ctx context.Context, env *state.LocalEnv, opts Options) (reports []*patch.Report, err error) {
	log := env.Log.Named("skin")

	set, err := overrides.Collect(opts.Overrides, env.Cfg.Patch.MappingFile, env.Cfg.Patch.Extensions, env.Log)
	if set == nil {
		return nil, err
	}
	if err != nil {
		log.Error("Some overrides were not collected", zap.Error(err))
	}
	if len(set.Sources) == 0 {
		log.Warn("No override stylesheets found", zap.String("location", opts.Overrides))
	}
	if err := env.Rpt.StoreCopy("overrides", opts.Overrides); err != nil {
		log.Warn("Unable to store overrides in debug report", zap.Error(err))
	}

	if !opts.DryRun {
		if err := prepareOutDir(opts.OutDir); err != nil {
			return nil, err
		}
	}

	cache := openCache(env, opts.NoCache, log)
	if cache != nil {
		defer func() {
			err = multierr.Append(err, cache.Close())
		}()
	}

	reports = make([]*patch.Report, 0, len(opts.Bundles))
	for _, path := range opts.Bundles {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rpt, err := patchBundle(ctx, env, set, cache, path, opts, log)
		if err != nil {
			return reports, fmt.Errorf("unable to patch %s: %w", path, err)
		}
		reports = append(reports, rpt)
	}
	return reports, nil
}

func patchBundle(ctx context.Context, env *state.LocalEnv, set *overrides.Set, cache *scancache.Cache, path string, opts Options, log *zap.Logger) (rpt *patch.Report, err error) {
	b, err := bundle.Open(path, env.Log)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, b.Close())
	}()

	sheets := b.Assets()
	names := make([]string, 0, len(sheets))
	for _, s := range sheets {
		names = append(names, s.Name)
	}
	log.Debug("Bundle assets", zap.String("bundle", path), zap.Strings("assets", names))

	registry := patch.NewRegistry(scanBundle(cache, path, sheets, log))
	resolver := overrides.NewResolver(set, names)

	rpt, err = patch.New(opts.Patch, resolver, registry, env.Log).Run(ctx, sheets)
	if err != nil {
		return nil, err
	}
	logReport(rpt, path, opts.DryRun, log)
	exportChanges(env, rpt, path)

	if opts.DryRun {
		return rpt, nil
	}

	changed := rpt.Changed()
	if len(changed) == 0 {
		log.Info("Nothing to change", zap.String("bundle", path))
		return rpt, nil
	}
	for _, s := range sheets {
		if ar, ok := rpt.Asset(s.Name); ok && ar.Changed {
			if err := b.Commit(s); err != nil {
				return nil, err
			}
		}
	}

	dst := ""
	if opts.OutDir != "" {
		dst = filepath.Join(opts.OutDir, filepath.Base(path))
	}
	if err := b.Save(dst, opts.Backup); err != nil {
		return nil, err
	}
	if dst == "" {
		dst = path
	}
	log.Info("Bundle saved", zap.String("bundle", dst), zap.Strings("changed", changed))

	// patched bundle replaced original, keep its scan current
	if cache != nil && dst == path {
		storeScan(cache, path, indexSheets(sheets), log)
	}
	return rpt, nil
}

// scanBundle returns per-asset indexes, from cache when bundle did not change
// since it was last scanned.
func scanBundle(cache *scancache.Cache, path string, sheets []*uss.Sheet, log *zap.Logger) []patch.Index {
	if cache != nil {
		if fp, err := scancache.Stat(path); err == nil {
			indexes, ok, err := cache.Lookup(fp)
			if err != nil {
				log.Warn("Unable to use scan cache", zap.String("bundle", path), zap.Error(err))
			} else if ok {
				return indexes
			}
		}
	}
	indexes := indexSheets(sheets)
	if cache != nil {
		storeScan(cache, path, indexes, log)
	}
	return indexes
}

func indexSheets(sheets []*uss.Sheet) []patch.Index {
	indexes := make([]patch.Index, 0, len(sheets))
	for _, s := range sheets {
		indexes = append(indexes, patch.IndexSheet(s))
	}
	return indexes
}

func storeScan(cache *scancache.Cache, path string, indexes []patch.Index, log *zap.Logger) {
	fp, err := scancache.Stat(path)
	if err == nil {
		err = cache.Store(fp, indexes)
	}
	if err != nil {
		log.Warn("Unable to update scan cache", zap.String("bundle", path), zap.Error(err))
	}
}

func openCache(env *state.LocalEnv, disabled bool, log *zap.Logger) *scancache.Cache {
	if disabled || !env.Cfg.Cache.Enable {
		return nil
	}
	cache, err := scancache.Open(env.Cfg.Cache.Path, env.Log)
	if err != nil {
		log.Warn("Scan cache is not available", zap.String("path", env.Cfg.Cache.Path), zap.Error(err))
		return nil
	}
	return cache
}

func logReport(rpt *patch.Report, path string, dryRun bool, log *zap.Logger) {
	for _, ar := range rpt.Assets {
		if ar.Targeted {
			log.Debug("Asset targeted", zap.String("asset", ar.Asset), zap.Strings("sources", ar.Sources))
		}
		for _, e := range ar.Entries {
			if dryRun || e.Action == patch.ActionSkipped {
				log.Info(e.String(), zap.String("asset", ar.Asset))
			} else {
				log.Debug(e.String(), zap.String("asset", ar.Asset))
			}
		}
	}
	for _, line := range rpt.Summary() {
		log.Info(line, zap.String("bundle", path))
	}
}

// exportChanges stores before and after text of every changed asset in debug
// report.
func exportChanges(env *state.LocalEnv, rpt *patch.Report, path string) {
	if env.Rpt == nil {
		return
	}
	dir := slug.Make(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	for _, ar := range rpt.Assets {
		if !ar.Changed {
			continue
		}
		name := slug.Make(ar.Asset)
		env.Rpt.StoreData(fmt.Sprintf("uss/%s/%s.before.uss", dir, name), []byte(ar.Before))
		env.Rpt.StoreData(fmt.Sprintf("uss/%s/%s.after.uss", dir, name), []byte(ar.After))
	}
	var changes strings.Builder
	for _, ar := range rpt.Assets {
		for _, e := range ar.Entries {
			fmt.Fprintf(&changes, "%s: %s\n", ar.Asset, e)
		}
	}
	for _, line := range rpt.Summary() {
		fmt.Fprintln(&changes, line)
	}
	env.Rpt.StoreData(fmt.Sprintf("uss/%s/changes.txt", dir), []byte(changes.String()))
}

// ensure output directory exists before any bundle is written
func prepareOutDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	return nil
}
