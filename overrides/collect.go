package overrides

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/maruel/natural"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fmskin/archive"
	"fmskin/css"
)

// Collect reads override files with one of extensions from dir (a
// directory, a zip archive or a single stylesheet) and the optional mapping
// file. Files sharing a stem are merged into one source in natural path
// order. Unreadable files are reported together, the rest are still
// collected.
func Collect(dir, mappingFile string, extensions []string, log *zap.Logger) (*Set, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("overrides")

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to access overrides: %w", err)
	}

	var (
		files   []overrideFile
		mapping []byte
		errs    error
	)
	switch {
	case info.IsDir():
		if files, errs = readDir(dir, extensions); files == nil && errs != nil {
			return nil, errs
		}
		if mappingFile != "" {
			if !filepath.IsAbs(mappingFile) {
				mappingFile = filepath.Join(dir, mappingFile)
			}
			if mapping, err = os.ReadFile(mappingFile); err != nil && !os.IsNotExist(err) {
				errs = multierr.Append(errs, fmt.Errorf("unable to read mapping: %w", err))
			}
		}
	case archive.IsArchive(dir):
		if files, mapping, err = readArchive(dir, mappingFile, extensions); err != nil {
			return nil, fmt.Errorf("unable to read overrides archive: %w", err)
		}
	default:
		data, err := os.ReadFile(dir)
		if err != nil {
			return nil, fmt.Errorf("unable to read %s: %w", dir, err)
		}
		files = append(files, overrideFile{path: dir, data: data})
	}
	slices.SortFunc(files, func(a, b overrideFile) int {
		return naturalCompare(a.path, b.path)
	})

	set := &Set{}
	parser := css.NewParser(log)
	for _, f := range files {
		sheet := parser.Parse(f.data, f.path)
		for _, w := range sheet.Warnings {
			log.Warn("Override file problem", zap.String("file", f.path), zap.String("warning", w))
		}

		name := stem(f.path)
		src := set.Source(name)
		if src == nil {
			src = NewSource(name)
			set.Sources = append(set.Sources, src)
		}
		src.Path = f.path
		addStylesheet(src, sheet)

		log.Debug("Collected overrides", zap.String("file", f.path),
			zap.Int("vars", len(src.Vars)), zap.Int("selectors", len(src.Selectors)))
	}

	if len(mapping) > 0 {
		targets, err := ParseMapping(mapping)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", mappingFile, err))
		}
		for _, t := range targets {
			if set.Source(t.Source) == nil {
				log.Warn("Mapping refers to unknown override file", zap.String("source", t.Source), zap.Strings("assets", t.Assets))
			}
		}
		set.Mapping = targets
	}
	return set, errs
}

type overrideFile struct {
	path string
	data []byte
}

func readDir(dir string, extensions []string) ([]overrideFile, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && hasExtension(path, extensions) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to walk overrides directory: %w", err)
	}

	files := make([]overrideFile, 0, len(paths))
	var errs error
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("unable to read %s: %w", path, err))
			continue
		}
		files = append(files, overrideFile{path: path, data: data})
	}
	return files, errs
}

// readArchive collects override files from zip archive, mapping file is
// looked up at archive root.
func readArchive(path, mappingFile string, extensions []string) (files []overrideFile, mapping []byte, err error) {
	err = archive.Walk(path,
		func(name string) bool {
			return hasExtension(name, extensions) || (mappingFile != "" && name == mappingFile)
		},
		func(name string, data []byte) error {
			if mappingFile != "" && name == mappingFile {
				mapping = data
				return nil
			}
			files = append(files, overrideFile{path: path + "/" + name, data: data})
			return nil
		})
	return files, mapping, err
}

func addStylesheet(src *Source, sheet *css.Stylesheet) {
	for _, rule := range sheet.Rules {
		for _, d := range rule.Declarations {
			if d.IsCustom() {
				src.Vars[d.Property] = d.Value
				continue
			}
			src.Selectors[Key{Selector: rule.Selector, Property: d.Property}] = d.Value
		}
	}
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.ContainsFunc(extensions, func(e string) bool {
		return strings.ToLower(e) == ext
	})
}

func naturalCompare(a, b string) int {
	switch {
	case natural.Less(a, b):
		return -1
	case natural.Less(b, a):
		return 1
	default:
		return 0
	}
}
