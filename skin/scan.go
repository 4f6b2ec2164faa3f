package skin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fmskin/bundle"
	"fmskin/state"
	"fmskin/utils/debug"
)

// Scan lists stylesheet assets of every bundle with variables and selectors
// they define, refreshing scan cache along the way.
func Scan(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() == 0 {
		return errors.New("no bundles to scan have been specified")
	}
	return ScanBundles(ctx, env, os.Stdout, cmd.Args().Slice())
}

// ScanBundles writes scan results for bundles to w.
func ScanBundles(ctx context.Context, env *state.LocalEnv, w io.Writer, paths []string) (err error) {
	log := env.Log.Named("scan")

	cache := openCache(env, env.NoScanCache, log)
	if cache != nil {
		defer func() {
			err = multierr.Append(err, cache.Close())
		}()
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := bundle.Open(path, env.Log)
		if err != nil {
			return err
		}
		sheets := b.Assets()
		indexes := indexSheets(sheets)
		if cache != nil {
			storeScan(cache, path, indexes, log)
		}
		if err := b.Close(); err != nil {
			return err
		}

		tw := debug.NewTreeWriter()
		tw.Line(0, "%s: %d stylesheet assets", path, len(indexes))
		for _, idx := range indexes {
			tw.Line(1, "%s: %d variables, %d selectors", idx.Asset, len(idx.Variables), len(idx.Selectors))
			tw.List(2, "variables", idx.Variables)
			tw.List(2, "selectors", idx.Selectors)
		}
		if _, err := tw.WriteTo(w); err != nil {
			return fmt.Errorf("unable to write scan results: %w", err)
		}
		log.Debug("Bundle scanned", zap.String("bundle", path), zap.Int("assets", len(indexes)))
	}
	return nil
}
