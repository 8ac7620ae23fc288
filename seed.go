package agentfs

import (
	"context"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/agentfs/agentfs/internal/storage"
)

// SeedOptions configures SeedFromDir: gitignore filtering plus
// force-include/force-exclude lists.
type SeedOptions struct {
	// Gitignore enables filtering by every .gitignore found under root,
	// each one scoped to the directory that declared it.
	Gitignore bool
	// Includes force-includes a relative path even if gitignore would
	// otherwise hide it. Takes precedence over Gitignore, not over Excludes.
	Includes []string
	// Excludes force-excludes a relative path (and everything under it),
	// taking precedence over both Includes and Gitignore.
	Excludes []string
}

// seedFilter reports whether relPath (slash-separated, root-relative, no
// leading slash) should be imported.
type seedFilter func(relPath string, isDir bool) bool

// SeedFromDir walks the host directory at root and populates fs's base
// layer with its files, directories, and symlinks, honoring opts' filter
// rules. It must be called on a freshly created, otherwise-empty database
// before any other mutation — it writes directly into the base layer,
// bypassing copy-up, and finishes by reserving the base inode-id range so
// later delta allocations never collide with a seeded id.
func SeedFromDir(fs *FS, root string, opts SeedOptions) error {
	filter, err := buildSeedFilter(root, opts)
	if err != nil {
		return newErr("Seed", root, IO, err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return newErr("Seed", root, InvalidArgument, err)
	}

	ctx := context.Background()
	return fs.withWrite(ctx, "Seed", root, func(tx *storage.Tx) error {
		imp := &seedImporter{fs: fs, tx: tx, nextBaseIno: storage.RootIno + 1}
		walkErr := filepath.WalkDir(absRoot, func(hostPath string, d iofs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if hostPath == absRoot {
				return nil
			}
			rel, err := filepath.Rel(absRoot, hostPath)
			if err != nil {
				return err
			}
			relSlash := filepath.ToSlash(rel)
			info, err := d.Info()
			if err != nil {
				return err
			}
			if filter != nil && !filter(relSlash, d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return imp.importPath(relSlash, hostPath, info)
		})
		if walkErr != nil {
			return walkErr
		}
		return imp.reserveBaseRange()
	})
}

// seedImporter holds the per-call state of a single SeedFromDir walk: the
// transaction it writes into and the directory-path-to-inode cache that
// lets it resolve a nested directory's parent without re-walking.
type seedImporter struct {
	fs          *FS
	tx          *storage.Tx
	nextBaseIno uint64
	dirInos     map[string]uint64 // slash-separated relative path -> ino ("" is root)
}

func (imp *seedImporter) allocIno() uint64 {
	ino := imp.nextBaseIno
	imp.nextBaseIno++
	return ino
}

func (imp *seedImporter) dirIno(relDir string) uint64 {
	if imp.dirInos == nil {
		imp.dirInos = map[string]uint64{"": storage.RootIno}
	}
	if ino, ok := imp.dirInos[relDir]; ok {
		return ino
	}
	return 0
}

func (imp *seedImporter) importPath(relSlash, hostPath string, info os.FileInfo) error {
	parentRel := parentOf(relSlash)
	parentIno := imp.dirIno(parentRel)
	if parentIno == 0 {
		// A parent directory was filtered out or not yet visited in walk
		// order; filepath.WalkDir always visits a directory before its
		// children, so this only happens if the parent itself was skipped.
		return nil
	}
	name := filepath.Base(relSlash)

	uid, gid := uint32(os.Getuid()), uint32(os.Getgid())

	switch {
	case info.IsDir():
		ino := imp.allocIno()
		ts := now()
		rec := &storage.InodeRecord{
			Mode: storage.ModeDir | uint32(info.Mode().Perm()), Uid: uid, Gid: gid, Nlink: 2,
			Atime: ts, Mtime: ts, Ctime: ts,
			Provenance: storage.ProvenanceBase,
		}
		if err := imp.fs.engine.PutInode(imp.tx, storage.LayerBase, ino, rec); err != nil {
			return err
		}
		if err := imp.fs.engine.PutDirEntry(imp.tx, storage.LayerBase, parentIno, name, ino); err != nil {
			return err
		}
		if imp.dirInos == nil {
			imp.dirInos = map[string]uint64{"": storage.RootIno}
		}
		imp.dirInos[relSlash] = ino
		return nil

	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(hostPath)
		if err != nil {
			return err
		}
		ino := imp.allocIno()
		ts := now()
		rec := &storage.InodeRecord{
			Mode: storage.ModeSymlink | 0777, Uid: uid, Gid: gid, Nlink: 1,
			Size: uint64(len(target)), Atime: ts, Mtime: ts, Ctime: ts,
			Provenance: storage.ProvenanceBase,
		}
		if err := imp.fs.engine.PutInode(imp.tx, storage.LayerBase, ino, rec); err != nil {
			return err
		}
		if err := imp.tx.Put(storage.SymKey(storage.LayerBase, ino), []byte(target)); err != nil {
			return err
		}
		return imp.fs.engine.PutDirEntry(imp.tx, storage.LayerBase, parentIno, name, ino)

	case info.Mode().IsRegular():
		data, err := os.ReadFile(hostPath)
		if err != nil {
			return err
		}
		ino := imp.allocIno()
		ts := now()
		rec := &storage.InodeRecord{
			Mode: storage.ModeFile | uint32(info.Mode().Perm()), Uid: uid, Gid: gid, Nlink: 1,
			Atime: ts, Mtime: ts, Ctime: ts,
			Provenance: storage.ProvenanceBase,
		}
		if err := imp.fs.engine.PutInode(imp.tx, storage.LayerBase, ino, rec); err != nil {
			return err
		}
		if _, err := imp.fs.engine.WriteContent(imp.tx, storage.LayerBase, ino, 0, 0, data); err != nil {
			return err
		}
		rec.Size = uint64(len(data))
		if err := imp.fs.engine.PutInode(imp.tx, storage.LayerBase, ino, rec); err != nil {
			return err
		}
		return imp.fs.engine.PutDirEntry(imp.tx, storage.LayerBase, parentIno, name, ino)

	default:
		// Device nodes, sockets, FIFOs: spec.md's data model has no entity
		// for them, so they are silently skipped.
		return nil
	}
}

// reserveBaseRange is the Seed Importer's mandatory last step: advance
// META/next_ino past every base id just allocated, and record the new
// max_base_ino, so checkInoReservation's precondition holds on next Open.
func (imp *seedImporter) reserveBaseRange() error {
	maxBase := imp.nextBaseIno - 1 // nextBaseIno started one past RootIno and is one past the last id allocIno returned
	if maxBase < storage.RootIno {
		maxBase = storage.RootIno
	}
	if err := imp.tx.Put(storage.MetaKey("max_base_ino"), storage.EncodeU64(maxBase)); err != nil {
		return err
	}
	return imp.tx.Put(storage.MetaKey("next_ino"), storage.EncodeU64(maxBase+1))
}

func parentOf(relSlash string) string {
	if i := strings.LastIndexByte(relSlash, '/'); i >= 0 {
		return relSlash[:i]
	}
	return ""
}

// buildSeedFilter applies excludes over includes over gitignore: excludes
// win over includes, includes win over gitignore, gitignore is scoped per
// directory.
func buildSeedFilter(root string, opts SeedOptions) (seedFilter, error) {
	if !opts.Gitignore && len(opts.Includes) == 0 && len(opts.Excludes) == 0 {
		return nil, nil
	}

	var matcher *gitignoreMatcher
	if opts.Gitignore {
		m, err := newGitignoreMatcher(root)
		if err != nil {
			return nil, err
		}
		matcher = m
	}

	return func(relPath string, isDir bool) bool {
		for _, exc := range opts.Excludes {
			if relPath == exc || strings.HasPrefix(relPath, exc+"/") {
				return false
			}
		}
		for _, inc := range opts.Includes {
			if relPath == inc || strings.HasPrefix(relPath, inc+"/") {
				return true
			}
		}
		if matcher != nil && matcher.isIgnored(relPath, isDir) {
			return false
		}
		return true
	}, nil
}

// gitignoreMatcher collects every .gitignore under root, each scoped to the
// directory that declared it.
type gitignoreMatcher struct {
	matchers []scopedMatcher
}

type scopedMatcher struct {
	dirPrefix string
	ignore    *ignore.GitIgnore
}

func newGitignoreMatcher(root string) (*gitignoreMatcher, error) {
	m := &gitignoreMatcher{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if filepath.Base(path) == ".git" && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Base(path) != ".gitignore" {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		relDir, relErr := filepath.Rel(root, filepath.Dir(path))
		if relErr != nil {
			return nil
		}
		if relDir == "." {
			relDir = ""
		}
		gi := ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
		m.matchers = append(m.matchers, scopedMatcher{dirPrefix: filepath.ToSlash(relDir), ignore: gi})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *gitignoreMatcher) isIgnored(relPath string, isDir bool) bool {
	if m == nil || len(m.matchers) == 0 {
		return false
	}
	checkPath := relPath
	if isDir {
		checkPath += "/"
	}
	for _, sm := range m.matchers {
		var pathToCheck string
		if sm.dirPrefix == "" {
			pathToCheck = checkPath
		} else {
			prefix := sm.dirPrefix + "/"
			if !strings.HasPrefix(relPath, prefix) {
				continue
			}
			pathToCheck = strings.TrimPrefix(checkPath, prefix)
		}
		if sm.ignore.MatchesPath(pathToCheck) {
			return true
		}
	}
	return false
}
