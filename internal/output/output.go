// Package output writes emitted trees to disk. A tree is built in a
// sibling staging directory and swapped into place, so a target is either
// written completely or not at all.
package output

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fenlang/fen/internal/emitter"
)

// ManifestName marks a directory as owned by the generator. It lists the
// files of the last run.
const ManifestName = ".fen-manifest"

// ErrNotOwned is returned for a non-empty output directory without a
// manifest when Force is not set.
var ErrNotOwned = errors.New("output directory is not empty and was not generated by fen")

const (
	fileMode = 0o644
	dirMode  = 0o755
)

// PlannedFile is one file a tree would write.
type PlannedFile struct {
	RelPath string
	Size    int
}

// Plan returns the files of tree sorted by path, without touching disk.
func Plan(tree *emitter.Tree) []PlannedFile {
	units := tree.Sorted()
	out := make([]PlannedFile, 0, len(units))
	for _, u := range units {
		out = append(out, PlannedFile{RelPath: u.Path, Size: len(u.Content)})
	}
	return out
}

// WriteOptions controls WriteTree.
type WriteOptions struct {
	// Force replaces a non-empty directory that has no manifest.
	Force bool
}

// WriteTree replaces dir with the contents of tree. On any error the
// previous contents of dir are left in place.
func WriteTree(dir string, tree *emitter.Tree, opts WriteOptions) ([]PlannedFile, error) {
	if tree == nil {
		return nil, errors.New("output: nil tree")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory %q: %w", dir, err)
	}
	exists, err := validateOutputDirectory(absDir, opts.Force)
	if err != nil {
		return nil, err
	}
	for _, u := range tree.Units {
		if err := checkRelPath(u.Path); err != nil {
			return nil, err
		}
	}

	parent := filepath.Dir(absDir)
	if err := os.MkdirAll(parent, dirMode); err != nil {
		return nil, fmt.Errorf("ensure parent directory %s: %w", parent, err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(absDir)+".staging-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	success := false
	defer func() {
		if !success {
			os.RemoveAll(staging)
		}
	}()
	if err := os.Chmod(staging, dirMode); err != nil {
		return nil, fmt.Errorf("chmod staging directory: %w", err)
	}

	planned := Plan(tree)
	for _, u := range tree.Units {
		if err := writeFile(staging, u.Path, u.Content); err != nil {
			return nil, err
		}
	}
	if err := writeFile(staging, ManifestName, manifest(tree.Target, planned)); err != nil {
		return nil, err
	}

	if err := swap(absDir, staging, exists); err != nil {
		return nil, err
	}
	success = true
	return planned, nil
}

// validateOutputDirectory reports whether dir exists and may be replaced.
func validateOutputDirectory(absPath string, force bool) (bool, error) {
	stat, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cannot access output directory %q: %w", absPath, err)
	}
	if !stat.IsDir() {
		return false, fmt.Errorf("output path %q is not a directory", absPath)
	}
	if force || Owned(absPath) {
		return true, nil
	}
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return false, fmt.Errorf("cannot read output directory %q: %w", absPath, err)
	}
	if len(entries) > 0 {
		return false, fmt.Errorf("%q: %w (use --force to replace it)", absPath, ErrNotOwned)
	}
	return true, nil
}

// Owned reports whether dir holds a manifest from an earlier run.
func Owned(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ManifestName))
	return err == nil && info.Mode().IsRegular()
}

// ReadManifest returns the files listed by the manifest in dir.
func ReadManifest(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var files []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		files = append(files, line)
	}
	return files, sc.Err()
}

func manifest(target string, planned []PlannedFile) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# fen %s target; this directory is replaced on every run\n", target)
	paths := make([]string, 0, len(planned))
	for _, p := range planned {
		paths = append(paths, p.RelPath)
	}
	sort.Strings(paths)
	for _, p := range paths {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func checkRelPath(rel string) error {
	native := filepath.FromSlash(rel)
	if !filepath.IsLocal(native) || filepath.Clean(native) != native {
		return fmt.Errorf("refusing to write %q outside the output directory", rel)
	}
	if rel == ManifestName {
		return fmt.Errorf("unit path %q is reserved", rel)
	}
	return nil
}

// writeFile writes content below baseDir and syncs it to disk.
func writeFile(baseDir, relPath string, content []byte) error {
	fullPath := filepath.Join(baseDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), dirMode); err != nil {
		return fmt.Errorf("ensure directory for %s: %w", relPath, err)
	}
	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if err != nil {
		return fmt.Errorf("create %s: %w", relPath, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", relPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", relPath, err)
	}
	return nil
}

// swap moves staging to absDir. An existing absDir is renamed aside first
// and restored if the second rename fails.
func swap(absDir, staging string, exists bool) error {
	if !exists {
		if err := os.Rename(staging, absDir); err != nil {
			return fmt.Errorf("move staged output into %s: %w", absDir, err)
		}
		return nil
	}
	old := staging + ".old"
	if err := os.Rename(absDir, old); err != nil {
		return fmt.Errorf("move previous output aside: %w", err)
	}
	if err := os.Rename(staging, absDir); err != nil {
		if rerr := os.Rename(old, absDir); rerr != nil {
			return fmt.Errorf("move staged output into %s: %w (previous output left at %s: %v)", absDir, err, old, rerr)
		}
		return fmt.Errorf("move staged output into %s: %w", absDir, err)
	}
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("remove previous output %s: %w", old, err)
	}
	return nil
}
