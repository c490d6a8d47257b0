// Copyright 2020 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package errorfs wraps a vfs.FS and injects errors into its operations. It
// is used to exercise the failure paths of the medium storage layer.
package errorfs

import (
	"fmt"
	"go/scanner"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vtape/vfs"
)

// ErrInjected is an error artificially injected for testing fs error paths.
var ErrInjected = errors.New("injected error")

// Op is an enum describing the type of operation.
type Op int

const (
	// OpCreate describes a create file operation.
	OpCreate Op = iota
	// OpOpen describes a file open operation.
	OpOpen
	// OpOpenDir describes a directory open operation.
	OpOpenDir
	// OpRemove describes a remove file operation.
	OpRemove
	// OpRemoveAll describes a recursive remove operation.
	OpRemoveAll
	// OpRename describes a rename operation.
	OpRename
	// OpMkdirAll describes a make directory including parents operation.
	OpMkdirAll
	// OpList describes a list directory operation.
	OpList
	// OpStat describes a path-based stat operation.
	OpStat
	// OpFileReadAt describes a file seek read operation.
	OpFileReadAt
	// OpFileWriteAt describes a file seek write operation.
	OpFileWriteAt
	// OpFileTruncate describes a file truncate operation.
	OpFileTruncate
	// OpFileStat describes a file stat operation.
	OpFileStat
	// OpFileSync describes a file sync operation.
	OpFileSync
)

var opNames = [...]string{
	OpCreate:       "create",
	OpOpen:         "open",
	OpOpenDir:      "open-dir",
	OpRemove:       "remove",
	OpRemoveAll:    "remove-all",
	OpRename:       "rename",
	OpMkdirAll:     "mkdir-all",
	OpList:         "list",
	OpStat:         "stat",
	OpFileReadAt:   "read-at",
	OpFileWriteAt:  "write-at",
	OpFileTruncate: "truncate",
	OpFileStat:     "file-stat",
	OpFileSync:     "sync",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// OpKind returns the operation's kind.
func (o Op) OpKind() OpKind {
	switch o {
	case OpOpen, OpOpenDir, OpList, OpStat, OpFileReadAt, OpFileStat:
		return OpKindRead
	case OpCreate, OpRemove, OpRemoveAll, OpRename, OpMkdirAll, OpFileWriteAt, OpFileTruncate, OpFileSync:
		return OpKindWrite
	default:
		panic(fmt.Sprintf("unrecognized op %v\n", o))
	}
}

// OpKind is an enum describing whether an operation is a read or write
// operation.
type OpKind int

const (
	// OpKindRead describes read operations.
	OpKindRead OpKind = iota
	// OpKindWrite describes write operations.
	OpKindWrite
)

// Injector injects errors into FS operations.
type Injector interface {
	// MaybeError is invoked by an errorfs before an operation is executed. It
	// is passed an enum indicating the type of operation and a path of the
	// subject file or directory. If the operation takes two paths (eg,
	// Rename), the original source path is provided.
	MaybeError(op Op, path string) error
}

// InjectorFunc implements the Injector interface for a function with
// MaybeError's signature.
type InjectorFunc func(Op, string) error

// MaybeError implements the Injector interface.
func (f InjectorFunc) MaybeError(op Op, path string) error { return f(op, path) }

// Always returns an injector that always injects an error.
func Always() Injector { return InjectorFunc(func(Op, string) error { return ErrInjected }) }

// Any returns an injector that injects an error if any the provided injectors
// inject an error.
func Any(injectors ...Injector) Injector {
	return InjectorFunc(func(op Op, path string) error {
		for _, inj := range injectors {
			if err := inj.MaybeError(op, path); err != nil {
				return err
			}
		}
		return nil
	})
}

// PathMatch returns an injector that injects an error on file paths whose
// base name matches the provided pattern (according to filepath.Match) and
// for which the provided next injector injects an error.
func PathMatch(pattern string, next Injector) Injector {
	return InjectorFunc(func(op Op, path string) error {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err != nil {
			// Only possible error is ErrBadPattern, indicating an issue with
			// the test itself.
			panic(err)
		} else if matched {
			return next.MaybeError(op, path)
		}
		return nil
	})
}

// OnOps returns an injector that injects an error on the listed operations
// for which the provided next injector injects an error.
func OnOps(next Injector, ops ...Op) Injector {
	return InjectorFunc(func(op Op, path string) error {
		for _, o := range ops {
			if o == op {
				return next.MaybeError(op, path)
			}
		}
		return nil
	})
}

// OnIndex constructs an injector that consults next on the (n+1)-th
// invocation of its MaybeError function, whatever the operation, and on no
// other. Wrap it in OnOps or PathMatch to count only some operations.
func OnIndex(index int32, next Injector) *InjectIndex {
	ii := &InjectIndex{next: next}
	ii.index.Store(index)
	return ii
}

// InjectIndex implements Injector, injecting an error at a specific index.
type InjectIndex struct {
	index atomic.Int32
	next  Injector
}

// Index returns the index at which the error will be injected.
func (ii *InjectIndex) Index() int32 { return ii.index.Load() }

// SetIndex sets the index at which the error will be injected.
func (ii *InjectIndex) SetIndex(v int32) { ii.index.Store(v) }

// MaybeError implements the Injector interface.
func (ii *InjectIndex) MaybeError(op Op, path string) error {
	if ii.index.Add(-1) != -1 {
		return nil
	}
	return ii.next.MaybeError(op, path)
}

// Toggle wraps an injector. By default, Toggle injects nothing. When toggled
// on, Toggle forwards to the wrapped injector.
type Toggle struct {
	Injector
	on atomic.Bool
}

// On enables error injection.
func (t *Toggle) On() { t.on.Store(true) }

// Off disables error injection.
func (t *Toggle) Off() { t.on.Store(false) }

// MaybeError implements Injector.
func (t *Toggle) MaybeError(op Op, path string) error {
	if !t.on.Load() {
		return nil
	}
	return t.Injector.MaybeError(op, path)
}

// ParseInjectorFromDSL parses a string encoding a ruleset describing when
// errors should be injected. There are a handful of supported functions and
// primitives:
//   - "always" is a primitive that injects an error every time
//   - "any(injector, [injector]...)" injects an error if any of the provided
//     injectors inject an error
//   - "pathMatch(pattern, injector)" injects an error if an operation's file
//     base name matches the provided shell pattern and the provided injector
//     injects an error.
//   - "onIndex(idx, injector)" consults the provided injector on the operation
//     with index idx, counting from zero every operation that reaches it.
//   - "reads(injector)" injects an error on all read operations for which
//     the provided injector injects an error.
//   - "writes(injector)" injects an error on all write operations for which
//     the provided injector injects an error.
//
// Example: pathMatch("indx", onIndex(2, writes(always))) is a rule set that
// will inject an error on the third operation involving an index file, if
// that operation is a write.
func ParseInjectorFromDSL(d string) (inj Injector, err error) {
	defer func() {
		if r := recover(); r != nil {
			var ok bool
			err, ok = r.(error)
			if !ok {
				panic(r)
			}
		}
	}()

	fset := token.NewFileSet()
	file := fset.AddFile("", -1, len(d))
	var s scanner.Scanner
	s.Init(file, []byte(strings.TrimSpace(d)), nil /* no error handler */, 0)
	inj = parseInjectorDSLFunc(&s)
	consumeTok(&s, token.SEMICOLON)
	consumeTok(&s, token.EOF)
	return inj, err
}

var dslParsers map[string]func(*scanner.Scanner) Injector

func init() {
	dslParsers = map[string]func(*scanner.Scanner) Injector{
		"always": func(*scanner.Scanner) Injector { return Always() },
		"any": func(s *scanner.Scanner) Injector {
			var injs []Injector
			consumeTok(s, token.LPAREN)
			injs = append(injs, parseInjectorDSLFunc(s))
			pos, tok, lit := s.Scan()
			for tok == token.COMMA {
				injs = append(injs, parseInjectorDSLFunc(s))
				pos, tok, lit = s.Scan()
			}
			if tok != token.RPAREN {
				panic(errors.Errorf("errorfs: unexpected token %s (%q) at %#v", tok, lit, pos))
			}
			return Any(injs...)
		},
		"pathMatch": func(s *scanner.Scanner) Injector {
			consumeTok(s, token.LPAREN)
			pattern := mustUnquote(consumeTok(s, token.STRING))
			consumeTok(s, token.COMMA)
			next := parseInjectorDSLFunc(s)
			consumeTok(s, token.RPAREN)
			return PathMatch(pattern, next)
		},
		"onIndex": func(s *scanner.Scanner) Injector {
			consumeTok(s, token.LPAREN)
			i, err := strconv.ParseInt(consumeTok(s, token.INT), 10, 32)
			if err != nil {
				panic(err)
			}
			consumeTok(s, token.COMMA)
			next := parseInjectorDSLFunc(s)
			consumeTok(s, token.RPAREN)
			return OnIndex(int32(i), next)
		},
		"reads": func(s *scanner.Scanner) Injector {
			consumeTok(s, token.LPAREN)
			next := parseInjectorDSLFunc(s)
			consumeTok(s, token.RPAREN)
			return InjectorFunc(func(o Op, path string) error {
				if o.OpKind() == OpKindRead {
					return next.MaybeError(o, path)
				}
				return nil
			})
		},
		"writes": func(s *scanner.Scanner) Injector {
			consumeTok(s, token.LPAREN)
			next := parseInjectorDSLFunc(s)
			consumeTok(s, token.RPAREN)
			return InjectorFunc(func(o Op, path string) error {
				if o.OpKind() == OpKindWrite {
					return next.MaybeError(o, path)
				}
				return nil
			})
		},
	}
}

func parseInjectorDSLFunc(s *scanner.Scanner) Injector {
	fn := consumeTok(s, token.IDENT)
	p, ok := dslParsers[fn]
	if !ok {
		panic(errors.Errorf("errorfs: unknown func %q", fn))
	}
	return p(s)
}

func consumeTok(s *scanner.Scanner, expected token.Token) (lit string) {
	pos, tok, lit := s.Scan()
	if tok != expected {
		panic(errors.Errorf("errorfs: unexpected token %s (%q) at %#v", tok, lit, pos))
	}
	return lit
}

func mustUnquote(lit string) string {
	s, err := strconv.Unquote(lit)
	if err != nil {
		panic(errors.Newf("errorfs: unquoting %q: %v", lit, err))
	}
	return s
}

// FS implements vfs.FS, injecting errors into
// its operations.
type FS struct {
	fs  vfs.FS
	inj Injector
}

var _ vfs.FS = (*FS)(nil)

// Wrap wraps an existing vfs.FS implementation, returning a new
// vfs.FS implementation that shadows operations to the provided FS.
// It uses the provided Injector for deciding when to inject errors.
// If an error is injected, FS propagates the error instead of
// shadowing the operation.
func Wrap(fs vfs.FS, inj Injector) *FS {
	return &FS{
		fs:  fs,
		inj: inj,
	}
}

// Unwrap returns the FS implementation underlying fs.
func (fs *FS) Unwrap() vfs.FS {
	return fs.fs
}

// Create implements FS.Create.
func (fs *FS) Create(name string) (vfs.File, error) {
	if err := fs.inj.MaybeError(OpCreate, name); err != nil {
		return nil, err
	}
	f, err := fs.fs.Create(name)
	if err != nil {
		return nil, err
	}
	return &errorFile{name, f, fs.inj}, nil
}

// Open implements FS.Open.
func (fs *FS) Open(name string) (vfs.File, error) {
	if err := fs.inj.MaybeError(OpOpen, name); err != nil {
		return nil, err
	}
	f, err := fs.fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &errorFile{name, f, fs.inj}, nil
}

// OpenReadWrite implements FS.OpenReadWrite.
func (fs *FS) OpenReadWrite(name string) (vfs.File, error) {
	if err := fs.inj.MaybeError(OpOpen, name); err != nil {
		return nil, err
	}
	f, err := fs.fs.OpenReadWrite(name)
	if err != nil {
		return nil, err
	}
	return &errorFile{name, f, fs.inj}, nil
}

// OpenDir implements FS.OpenDir.
func (fs *FS) OpenDir(name string) (vfs.File, error) {
	if err := fs.inj.MaybeError(OpOpenDir, name); err != nil {
		return nil, err
	}
	f, err := fs.fs.OpenDir(name)
	if err != nil {
		return nil, err
	}
	return &errorFile{name, f, fs.inj}, nil
}

// PathBase implements FS.PathBase.
func (fs *FS) PathBase(p string) string {
	return fs.fs.PathBase(p)
}

// PathDir implements FS.PathDir.
func (fs *FS) PathDir(p string) string {
	return fs.fs.PathDir(p)
}

// PathJoin implements FS.PathJoin.
func (fs *FS) PathJoin(elem ...string) string {
	return fs.fs.PathJoin(elem...)
}

// Remove implements FS.Remove.
func (fs *FS) Remove(name string) error {
	if err := fs.inj.MaybeError(OpRemove, name); err != nil {
		return err
	}
	return fs.fs.Remove(name)
}

// RemoveAll implements FS.RemoveAll.
func (fs *FS) RemoveAll(fullname string) error {
	if err := fs.inj.MaybeError(OpRemoveAll, fullname); err != nil {
		return err
	}
	return fs.fs.RemoveAll(fullname)
}

// Rename implements FS.Rename.
func (fs *FS) Rename(oldname, newname string) error {
	if err := fs.inj.MaybeError(OpRename, oldname); err != nil {
		return err
	}
	return fs.fs.Rename(oldname, newname)
}

// MkdirAll implements FS.MkdirAll.
func (fs *FS) MkdirAll(dir string, perm os.FileMode) error {
	if err := fs.inj.MaybeError(OpMkdirAll, dir); err != nil {
		return err
	}
	return fs.fs.MkdirAll(dir, perm)
}

// List implements FS.List.
func (fs *FS) List(dir string) ([]string, error) {
	if err := fs.inj.MaybeError(OpList, dir); err != nil {
		return nil, err
	}
	return fs.fs.List(dir)
}

// Stat implements FS.Stat.
func (fs *FS) Stat(name string) (os.FileInfo, error) {
	if err := fs.inj.MaybeError(OpStat, name); err != nil {
		return nil, err
	}
	return fs.fs.Stat(name)
}

// errorFile implements vfs.File. The interface is implemented on the pointer
// type to allow pointer equality comparisons.
type errorFile struct {
	path string
	file vfs.File
	inj  Injector
}

func (f *errorFile) Close() error {
	// We don't inject errors during close as those calls should never fail in
	// practice.
	return f.file.Close()
}

func (f *errorFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.inj.MaybeError(OpFileReadAt, f.path); err != nil {
		return 0, err
	}
	return f.file.ReadAt(p, off)
}

func (f *errorFile) WriteAt(p []byte, off int64) (int, error) {
	if err := f.inj.MaybeError(OpFileWriteAt, f.path); err != nil {
		return 0, err
	}
	return f.file.WriteAt(p, off)
}

func (f *errorFile) Truncate(size int64) error {
	if err := f.inj.MaybeError(OpFileTruncate, f.path); err != nil {
		return err
	}
	return f.file.Truncate(size)
}

func (f *errorFile) Stat() (os.FileInfo, error) {
	if err := f.inj.MaybeError(OpFileStat, f.path); err != nil {
		return nil, err
	}
	return f.file.Stat()
}

func (f *errorFile) Sync() error {
	if err := f.inj.MaybeError(OpFileSync, f.path); err != nil {
		return err
	}
	return f.file.Sync()
}
