package scanner

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/buemura/jarhunter/internal/archive"
	"github.com/buemura/jarhunter/internal/log"
	"github.com/buemura/jarhunter/internal/signature"
	"github.com/buemura/jarhunter/pkg/types"
)

// Engine scans single files. It holds no per-scan state, so one Engine may be
// used from many goroutines.
type Engine struct {
	catalog *signature.Catalog
	opts    Options
	now     func() time.Time
}

// NewEngine creates an engine that detects the catalog's products.
func NewEngine(catalog *signature.Catalog, opts Options) *Engine {
	return &Engine{catalog: catalog, opts: opts, now: time.Now}
}

// Catalog returns the signatures the engine detects.
func (e *Engine) Catalog() *signature.Catalog { return e.catalog }

// Options returns the engine's options.
func (e *Engine) Options() Options { return e.opts }

// ScanFile inspects one archive on disk. Names that are not valid UTF-8 cause
// a single rescan with the fallback charset.
func (e *Engine) ScanFile(path string) (*FileResult, error) {
	res, err := e.scan(path, archive.Options{})
	if err == nil || !errors.Is(err, archive.ErrEncoding) {
		return res, err
	}

	cs := e.opts.Charset
	if cs == nil {
		cs = archive.DefaultFallback
	}
	log.Debugf("rescanning %s with charset %s", path, archive.CharsetName(cs))

	res, err = e.scan(path, archive.Options{Charset: cs})
	if err != nil {
		if errors.Is(err, archive.ErrEncoding) {
			return nil, fmt.Errorf("%w: %v", archive.ErrBrokenArchive, err)
		}
		return nil, err
	}
	res.Charset = cs
	return res, nil
}

// frame is one open archive on the scan stack.
type frame struct {
	cursor archive.Cursor
	probes []*probe
	result DetectResult
}

type scanState struct {
	engine  *Engine
	path    string
	opts    archive.Options
	stack   []*frame
	chain   []string
	entries []types.ReportEntry
	depth   int
}

func (e *Engine) scan(path string, opts archive.Options) (*FileResult, error) {
	c, err := archive.OpenFile(path, opts)
	if err != nil {
		return nil, err
	}

	s := &scanState{engine: e, path: path, opts: opts}
	s.push(c, "")
	result, err := s.run()
	if cerr := s.closeAll(); err == nil && cerr != nil {
		log.Debugf("closing %s: %v", path, cerr)
	}
	if err != nil {
		return nil, err
	}

	return &FileResult{
		Path:    path,
		Result:  result,
		Entries: s.entries,
		Depth:   s.depth,
	}, nil
}

// run walks the archive tree depth first with an explicit stack. A child
// cursor reads from its parent's current entry, so only the top frame is
// ever advanced.
func (s *scanState) run() (DetectResult, error) {
	var root DetectResult
	for len(s.stack) > 0 {
		f := s.stack[len(s.stack)-1]

		entry, err := f.cursor.Next()
		if err == io.EOF {
			s.classify(f)
			if done := s.pop(&root); done {
				return root, nil
			}
			continue
		}
		if err == nil {
			err = s.visit(f, entry)
		}
		if err == nil {
			continue
		}

		if errors.Is(err, archive.ErrEncoding) || !s.isWinRAR() {
			return root, err
		}
		// WinRAR archives share the .rar extension with resource adapter
		// archives but are not zip files. The node keeps what it found so far
		// and is not classified.
		log.Debugf("ignoring non-zip rar %s: %v", s.location(), err)
		if done := s.pop(&root); done {
			return root, nil
		}
	}
	return root, nil
}

func (s *scanState) visit(f *frame, entry *archive.Entry) error {
	log.Tracef("entry %s (%s)", entry.Name, s.location())

	consumed := false
	for _, p := range f.probes {
		used, err := p.observe(entry)
		if err != nil {
			return err
		}
		consumed = consumed || used
	}

	if consumed || entry.IsDir || !types.IsScanTarget(entry.Name, s.engine.opts.ScanZip) {
		return nil
	}

	depth := len(s.stack)
	if limit := s.engine.opts.MaxDepth; limit > 0 && depth > limit {
		log.Warnf("not descending into %s in %s: depth %d exceeds %d", entry.Name, s.location(), depth, limit)
		return nil
	}

	r, err := entry.Open()
	if err != nil {
		return err
	}
	s.push(archive.NewStream(r, s.opts), entry.Name)
	return nil
}

func (s *scanState) push(c archive.Cursor, name string) {
	if name != "" {
		s.chain = append(s.chain, name)
	}
	s.stack = append(s.stack, &frame{cursor: c, probes: newProbes(s.engine.catalog)})
	if d := len(s.stack) - 1; d > s.depth {
		s.depth = d
	}
}

// pop closes the top frame and merges its result into the parent. It reports
// true when the root frame was popped, leaving its result in root.
func (s *scanState) pop(root *DetectResult) bool {
	f := s.stack[len(s.stack)-1]
	if err := f.cursor.Close(); err != nil {
		log.Debugf("closing %s: %v", s.location(), err)
	}
	s.stack = s.stack[:len(s.stack)-1]

	if len(s.stack) == 0 {
		*root = f.result
		return true
	}
	s.chain = s.chain[:len(s.chain)-1]
	s.stack[len(s.stack)-1].result.Merge(f.result)
	return false
}

func (s *scanState) classify(f *frame) {
	for _, p := range f.probes {
		found, ok := p.classify(s.engine.opts.ReportSafe)
		if !ok {
			continue
		}
		f.result.Mark(found.status)
		s.entries = append(s.entries, types.ReportEntry{
			Path:       s.path,
			Chain:      append([]string(nil), s.chain...),
			Product:    found.product,
			Version:    found.version,
			CVE:        found.cve,
			Status:     found.status,
			DetectedAt: s.engine.now(),
		})
	}
}

// isWinRAR reports whether the innermost archive being read is named .rar.
func (s *scanState) isWinRAR() bool {
	name := filepath.Base(s.path)
	if len(s.chain) > 0 {
		name = s.chain[len(s.chain)-1]
	}
	return types.KindOf(name) == types.KindRar
}

func (s *scanState) location() string {
	if len(s.chain) == 0 {
		return s.path
	}
	return s.path + " (" + strings.Join(s.chain, types.ChainSeparator) + ")"
}

func (s *scanState) closeAll() error {
	var err error
	for i := len(s.stack) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.stack[i].cursor.Close())
	}
	s.stack = nil
	return err
}
