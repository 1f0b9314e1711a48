package index

import (
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/odvcencio/weft/pkg/object"
)

// ModeFromFileInfo maps worktree file info onto a tree mode.
func ModeFromFileInfo(info os.FileInfo) string {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return object.TreeModeSymlink
	case info.IsDir():
		return object.TreeModeDir
	case info.Mode()&0o111 != 0:
		return object.TreeModeExecutable
	}
	return object.TreeModeFile
}

// FilePerm returns the permission bits a checkout uses for mode.
func FilePerm(mode string) os.FileMode {
	if object.NormalizeMode(mode) == object.TreeModeExecutable {
		return 0o755
	}
	return 0o644
}

// ReadWorktreeFile returns the blob content for a worktree path: the file
// bytes, or the link target for a symlink.
func ReadWorktreeFile(wt billy.Filesystem, p string, info os.FileInfo) ([]byte, error) {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := wt.Readlink(p)
		if err != nil {
			return nil, err
		}
		return []byte(target), nil
	}
	return util.ReadFile(wt, p)
}

// EntryFromFileInfo fills the stat fields of an entry. billy exposes no
// ctime, device or inode data, so those stay zero and CTime mirrors the
// modification time.
func EntryFromFileInfo(p string, h object.Hash, info os.FileInfo) Entry {
	return Entry{
		Path:    p,
		Hash:    h,
		Mode:    ModeFromFileInfo(info),
		Size:    uint32(info.Size()),
		ModTime: info.ModTime(),
		CTime:   info.ModTime(),
	}
}

// StatMatches reports whether the stat data of e still describes info, in
// which case the content is assumed unchanged.
func StatMatches(e *Entry, info os.FileInfo) bool {
	if e.AssumeValid {
		return true
	}
	if e.ModTime.IsZero() || e.ModTime.Equal(time.Unix(0, 0)) {
		return false
	}
	return e.Size == uint32(info.Size()) &&
		e.ModTime.Unix() == info.ModTime().Unix() &&
		e.ModTime.Nanosecond() == info.ModTime().Nanosecond() &&
		object.NormalizeMode(e.Mode) == ModeFromFileInfo(info)
}

// AddByPath hashes the worktree file at p into the store and stages it at
// stage 0, clearing any conflict for the path.
func (ix *Index) AddByPath(p string) error {
	if ix.worktree == nil {
		return fmt.Errorf("add %q: %w", p, ErrNoWorktree)
	}
	if err := ValidatePath(p); err != nil {
		return fmt.Errorf("add %q: %w", p, err)
	}
	info, err := ix.worktree.Lstat(p)
	if err != nil {
		return fmt.Errorf("add %q: %w", p, err)
	}
	if info.IsDir() {
		return fmt.Errorf("add %q: is a directory: %w", p, ErrInvalidPath)
	}
	data, err := ReadWorktreeFile(ix.worktree, p, info)
	if err != nil {
		return fmt.Errorf("add %q: read: %w", p, err)
	}
	h, err := ix.store.WriteBlob(&object.Blob{Data: data})
	if err != nil {
		return fmt.Errorf("add %q: write blob: %w", p, err)
	}
	if err := ix.Add(EntryFromFileInfo(p, h, info)); err != nil {
		return err
	}
	ix.logger.Debug("staged", "path", p, "hash", h.Short())
	return nil
}
