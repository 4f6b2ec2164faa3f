package bundle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/maruel/natural"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fmskin/misc"
	"fmskin/uss"
)

// BackupSuffix is appended to bundle name when backup copy is requested.
const BackupSuffix = ".bak"

var ErrClosed = errors.New("bundle is closed")

// Context is an opened bundle. Assets may be patched concurrently, container
// serialization is guarded by the mutex.
type Context struct {
	mu     sync.Mutex
	path   string
	cont   *Container
	byName map[string]*Entity
	dirty  bool
	closed bool
	log    *zap.Logger
}

// New creates empty in-memory bundle with fresh container id.
func New(log *zap.Logger) (*Context, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("unable to generate container id: %w", err)
	}
	return newContext("", &Container{
		Version:     ContainerVersion,
		ContainerID: id.String(),
		Generator:   misc.GetAppName() + " " + misc.GetVersion(),
	}, log)
}

// Open reads bundle from path.
func Open(path string, log *zap.Logger) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read bundle: %w", err)
	}
	cont, err := ReadContainer(data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse bundle %s: %w", path, err)
	}
	return newContext(path, cont, log)
}

func newContext(path string, cont *Container, log *zap.Logger) (*Context, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Context{
		path:   path,
		cont:   cont,
		byName: make(map[string]*Entity),
		log:    log.Named("bundle"),
	}
	for _, ent := range cont.Entities {
		if ent.Sheet == nil {
			continue
		}
		if _, exists := c.byName[ent.Sheet.Name]; exists {
			return nil, fmt.Errorf("duplicate stylesheet asset %q", ent.Sheet.Name)
		}
		c.byName[ent.Sheet.Name] = ent
	}
	c.log.Debug("Bundle opened",
		zap.String("path", path),
		zap.String("id", cont.ContainerID),
		zap.Int("entities", len(cont.Entities)),
		zap.Int("stylesheets", len(c.byName)))
	return c, nil
}

// Path returns location bundle was opened from, empty for new bundles.
func (c *Context) Path() string {
	return c.path
}

// ID returns container id.
func (c *Context) ID() string {
	return c.cont.ContainerID
}

// Assets returns stylesheet assets in natural name order.
func (c *Context) Assets() []*uss.Sheet {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Sort(natural.StringSlice(names))
	sheets := make([]*uss.Sheet, 0, len(names))
	for _, name := range names {
		sheets = append(sheets, c.byName[name].Sheet)
	}
	return sheets
}

// Add appends asset as a new stylesheet entity.
func (c *Context) Add(sheet *uss.Sheet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if _, exists := c.byName[sheet.Name]; exists {
		return fmt.Errorf("duplicate stylesheet asset %q", sheet.Name)
	}
	data, err := EncodeSheet(sheet)
	if err != nil {
		return err
	}
	ent := &Entity{ID: c.nextID(), Type: EntityStylesheet, Data: data, Sheet: sheet}
	c.cont.Entities = append(c.cont.Entities, ent)
	c.byName[sheet.Name] = ent
	c.dirty = true
	return nil
}

// AddOpaque appends entity which is carried through without interpretation.
func (c *Context) AddOpaque(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.cont.Entities = append(c.cont.Entities, &Entity{ID: c.nextID(), Type: EntityOpaque, Data: data})
	c.dirty = true
	return nil
}

func (c *Context) nextID() uint32 {
	var id uint32
	for _, ent := range c.cont.Entities {
		id = max(id, ent.ID+1)
	}
	return id
}

// Commit re-serializes patched asset into its entity.
func (c *Context) Commit(sheet *uss.Sheet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	ent, ok := c.byName[sheet.Name]
	if !ok {
		return fmt.Errorf("stylesheet asset %q is not in bundle", sheet.Name)
	}
	data, err := EncodeSheet(sheet)
	if err != nil {
		return err
	}
	ent.Data, ent.Sheet = data, sheet
	c.dirty = true
	c.log.Debug("Asset committed", zap.String("asset", sheet.Name), zap.Int("size", len(data)))
	return nil
}

// Dirty reports whether there are changes not yet saved.
func (c *Context) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Save writes bundle to dst, or back to where it was opened from when dst is
// empty. When backup is requested and destination exists it is copied to
// dst+BackupSuffix first.
func (c *Context) Save(dst string, backup bool) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if dst == "" {
		dst = c.path
	}
	if dst == "" {
		return errors.New("no destination for bundle")
	}

	data, err := c.cont.WriteContainer()
	if err != nil {
		return fmt.Errorf("unable to serialize bundle: %w", err)
	}

	if backup {
		if err := copyFile(dst, dst+BackupSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("unable to backup bundle: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("unable to create destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()
	_, err = tmp.Write(data)
	err = multierr.Append(err, tmp.Chmod(fileMode(dst, c.path)))
	err = multierr.Append(err, tmp.Close())
	if err != nil {
		return fmt.Errorf("unable to write bundle: %w", err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("unable to replace bundle: %w", err)
	}

	c.dirty = false
	c.log.Debug("Bundle saved", zap.String("path", dst), zap.Int("size", len(data)), zap.Bool("backup", backup))
	return nil
}

// Close releases bundle. Unsaved changes are dropped with a warning.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.dirty {
		c.log.Warn("Closing bundle with unsaved changes", zap.String("path", c.path))
	}
	c.closed = true
	c.byName = nil
	return nil
}

// fileMode returns permissions of the first existing file, 0644 when none
// exists.
func fileMode(paths ...string) os.FileMode {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil {
			return info.Mode().Perm()
		}
	}
	return 0644
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	_, err = io.Copy(out, in)
	return err
}
