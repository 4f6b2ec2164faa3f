// Package patch applies override sets to stylesheet assets.
package patch

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fmskin/overrides"
	"fmskin/uss"
)

// ErrUnresolvableReference is reported when variable definition refers to a
// name which has no literal value (dangling or cyclic reference).
var ErrUnresolvableReference = errors.New("unresolvable variable reference")

// Options configure patch run.
type Options struct {
	PrimaryVariableAsset string // destination for new variables nobody targets
	PrimarySelectorAsset string // destination for new selectors nobody targets
	Workers              int    // 0 means runtime.NumCPU()
	DryRun               bool   // patch copies, leave passed sheets untouched
}

// Patcher runs four phase patching over a set of assets.
type Patcher struct {
	opts     Options
	resolver *overrides.Resolver
	registry *Registry
	log      *zap.Logger
}

// New returns patcher. Registry must be built from the same assets before
// any of them is patched.
func New(opts Options, resolver *overrides.Resolver, registry *Registry, log *zap.Logger) *Patcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Patcher{
		opts:     opts,
		resolver: resolver,
		registry: registry,
		log:      log.Named("patch"),
	}
}

// Run patches sheets in parallel. Sheets are independent, each one is
// processed by single worker. Report entries follow order of sheets.
func (p *Patcher) Run(ctx context.Context, sheets []*uss.Sheet) (*Report, error) {
	workers := p.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	reports := make([]AssetReport, len(sheets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sheet := range sheets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			target := sheet
			if p.opts.DryRun {
				target = sheet.Clone()
			}
			reports[i] = p.Patch(target)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("patch run interrupted: %w", err)
	}

	rpt := merge(reports)
	p.log.Debug("Patch run complete",
		zap.Int("assets", len(sheets)),
		zap.Int("changed", len(rpt.Changed())),
		zap.Bool("dry-run", p.opts.DryRun))
	return rpt, nil
}

// Patch applies effective overrides to single sheet in place.
func (p *Patcher) Patch(sheet *uss.Sheet) AssetReport {
	eff := p.resolver.Effective(sheet.Name)
	ap := &assetPatch{
		Patcher:      p,
		sheet:        sheet,
		eff:          eff,
		rep:          AssetReport{Asset: sheet.Name, Targeted: eff.ExplicitlyTargeted, Sources: eff.Sources},
		log:          p.log.With(zap.String("asset", sheet.Name)),
		matchedVars:  make(map[string]bool),
		matchedPairs: make(map[overrides.Key]bool),
	}
	if eff.Empty() {
		return ap.rep
	}

	before := sheet.String()

	ap.resolveDefinitions()
	ap.updateExisting()
	ap.placeVariables()
	ap.placeSelectors()

	if ap.rep.Changed {
		ap.rep.Before = before
		ap.rep.After = sheet.String()
	}
	return ap.rep
}
