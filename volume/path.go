package volume

import (
	"strings"

	"github.com/Carben-dev/ext2fs-simple-utilities/ext2err"
	"github.com/Carben-dev/ext2fs-simple-utilities/ondisk"
)

// resolve translates an absolute path to an inode number. One trailing slash
// is stripped before resolution; "/" alone resolves to the root inode.
// Resolution never follows symlinks (spec.md §4.5).
func (v *Volume) resolve(p string) (uint32, error) {
	if !strings.HasPrefix(p, "/") {
		return 0, ext2err.New(ext2err.NotFound)
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return ondisk.RootInode, nil
	}

	current := uint32(ondisk.RootInode)
	for _, part := range strings.Split(p[1:], "/") {
		in, err := v.readInode(current)
		if err != nil {
			return 0, err
		}
		if !in.IsDir() {
			return 0, ext2err.New(ext2err.NotFound)
		}

		entry, found, err := v.lookupDirent(current, part)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, ext2err.New(ext2err.NotFound)
		}
		current = entry.Header.Inode
	}
	return current, nil
}

// splitPath splits an absolute path into its parent path and leaf name.
// splitPath("/a/b") == ("/a", "b"); splitPath("/a") == ("/", "a").
func splitPath(p string) (parent, leaf string) {
	p = strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/", p[idx+1:]
	}
	return p[:idx], p[idx+1:]
}
