// Package resolve maps decoded request paths to entries under a document
// root. All lookups go through an os.Root, so neither ".." segments nor
// symlinks can reach outside the root.
package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"syscall"
)

// Kind tags the variant held by a Resource.
type Kind int

const (
	Missing Kind = iota
	Forbidden
	Directory
	RegularFile
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Forbidden:
		return "forbidden"
	case Directory:
		return "directory"
	case RegularFile:
		return "file"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Entry is one child of a listed directory.
type Entry struct {
	Name string
	Size int64
	Dir  bool
}

// Resource is the outcome of resolving one path.
type Resource struct {
	Kind Kind
	// Path is the decoded request path that was resolved.
	Path string
	// Name is the root-relative filesystem name, "." for the root itself.
	Name string
	// Size is the file size for RegularFile.
	Size int64
	// Entries holds the sorted children for Directory.
	Entries []Entry
	// File is open for RegularFile; the consumer must close it.
	File *os.File
	// Err records why a lookup ended in Missing, Forbidden or Unsupported.
	Err error
}

// Resolver resolves paths against one document root.
type Resolver struct {
	dir  string
	root *os.Root
}

// New opens dir as the document root.
func New(dir string) (*Resolver, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve: open root %q: %w", dir, err)
	}
	return &Resolver{dir: dir, root: root}, nil
}

// Dir returns the document root as given to New.
func (r *Resolver) Dir() string { return r.dir }

// Close releases the root handle.
func (r *Resolver) Close() error { return r.root.Close() }

// Resolve classifies decodedPath. "/" is the root itself; any other path
// is taken relative to the root after dropping its leading slash.
func (r *Resolver) Resolve(decodedPath string) Resource {
	res := Resource{Path: decodedPath}
	name, wantDir, ok := rootRelative(decodedPath)
	if !ok {
		res.Kind = Forbidden
		res.Err = fmt.Errorf("resolve: %q escapes the document root", decodedPath)
		return res
	}
	res.Name = name

	fi, err := r.root.Lstat(name)
	if err != nil {
		res.Kind, res.Err = classify(err), err
		return res
	}
	switch {
	case fi.IsDir():
		entries, err := r.list(name)
		if err != nil {
			res.Kind, res.Err = classify(err), err
			return res
		}
		res.Kind, res.Entries = Directory, entries
	case wantDir:
		res.Kind, res.Err = Missing, fmt.Errorf("resolve: %q is not a directory", name)
	case fi.Mode().IsRegular():
		f, err := r.root.Open(name)
		if err != nil {
			res.Kind, res.Err = classify(err), err
			return res
		}
		st, err := f.Stat()
		if err != nil || !st.Mode().IsRegular() {
			_ = f.Close()
			res.Kind, res.Err = Unsupported, fmt.Errorf("resolve: %q changed during lookup", name)
			return res
		}
		res.Kind, res.File, res.Size = RegularFile, f, st.Size()
	default:
		res.Kind = Unsupported
		res.Err = fmt.Errorf("resolve: %q has unsupported mode %v", name, fi.Mode().Type())
	}
	return res
}

// list returns the regular files and directories directly under name,
// sorted byte-wise by name. Other entry kinds are left out.
func (r *Resolver) list(name string) ([]Entry, error) {
	d, err := r.root.Open(name)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	des, err := d.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		if !de.IsDir() && !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), Size: info.Size(), Dir: de.IsDir()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// rootRelative turns a decoded request path into an os.Root name. It
// rejects NUL bytes, ".." segments and paths that stay absolute after the
// leading slash is dropped.
func rootRelative(p string) (name string, wantDir, ok bool) {
	if strings.IndexByte(p, 0) >= 0 || !strings.HasPrefix(p, "/") {
		return "", false, false
	}
	if p == "/" {
		return ".", true, true
	}
	rel := p[1:]
	if strings.HasPrefix(rel, "/") {
		return "", false, false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", false, false
		}
	}
	return path.Clean(rel), strings.HasSuffix(rel, "/"), true
}

func classify(err error) Kind {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return Missing
	}
	return Forbidden
}
