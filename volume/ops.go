package volume

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Carben-dev/ext2fs-simple-utilities/ext2err"
	"github.com/Carben-dev/ext2fs-simple-utilities/ondisk"
)

// createInode allocates a fresh inode of the given mode with every other
// field zeroed (spec.md §4.4).
func (v *Volume) createInode(mode uint16) (uint32, error) {
	inum, err := v.allocateInode()
	if err != nil {
		return 0, err
	}
	in := ondisk.RawInode{Mode: mode}
	if err := v.writeInode(inum, in); err != nil {
		return 0, err
	}
	return inum, nil
}

// populateFileInode writes buf into freshly allocated data blocks and
// records the resulting block-list and size on inum's inode.
func (v *Volume) populateFileInode(inum uint32, buf []byte) error {
	in, err := v.readInode(inum)
	if err != nil {
		return err
	}

	n := (len(buf) + ondisk.BlockSize - 1) / ondisk.BlockSize
	blocks := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		b, err := v.allocateBlock()
		if err != nil {
			return err
		}
		blocks = append(blocks, b)
	}

	for i, b := range blocks {
		dst := v.block(b)
		start := i * ondisk.BlockSize
		end := start + ondisk.BlockSize
		if end > len(buf) {
			end = len(buf)
		}
		copy(dst, buf[start:end])
	}

	in.Size = uint32(len(buf))
	in.Blocks = uint32(2 * n)
	if err := v.writeBlockList(&in, blocks); err != nil {
		return err
	}
	return v.writeInode(inum, in)
}

// makeDirectoryBody allocates a directory's sole initial data block and
// writes its "." and ".." entries, bumping both inodes' link counts and the
// group descriptor's used-directory count (spec.md §4.4).
func (v *Volume) makeDirectoryBody(selfInode, parentInode uint32) error {
	in, err := v.readInode(selfInode)
	if err != nil {
		return err
	}

	b, err := v.allocateBlock()
	if err != nil {
		return err
	}
	data := v.block(b)

	dot := ondisk.DirentHeader{Inode: selfInode, RecLen: 12, NameLen: 1, FileType: ondisk.FtDir}
	putDirentHeader(data, 0, dot, ".")
	dotdot := ondisk.DirentHeader{
		Inode:    parentInode,
		RecLen:   uint16(ondisk.BlockSize - 12),
		NameLen:  2,
		FileType: ondisk.FtDir,
	}
	putDirentHeader(data, 12, dotdot, "..")

	in.Blocks = 2
	in.Size = ondisk.BlockSize
	if err := v.writeBlockList(&in, []uint32{b}); err != nil {
		return err
	}
	if err := v.writeInode(selfInode, in); err != nil {
		return err
	}

	if err := v.bumpLinksCount(selfInode, 1); err != nil {
		return err
	}
	if err := v.bumpLinksCount(parentInode, 1); err != nil {
		return err
	}

	gd := v.GroupDescriptor()
	gd.UsedDirsCount++
	v.SetGroupDescriptor(gd)
	return nil
}

func (v *Volume) bumpLinksCount(inum uint32, delta int16) error {
	in, err := v.readInode(inum)
	if err != nil {
		return err
	}
	in.LinksCount = uint16(int16(in.LinksCount) + delta)
	return v.writeInode(inum, in)
}

// freeInode frees every data block owned by inum, including its indirect
// block if present, stamps dtime, and clears the inode's bitmap bit. It does
// not zero Block[]: restore relies on the stale pointers (spec.md §4.4).
func (v *Volume) freeInode(inum uint32) error {
	in, err := v.readInode(inum)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, b := range v.readBlockList(in) {
		if err := v.freeBlockBit(b); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if hasIndirect(in) {
		if err := v.freeBlockBit(in.Block[ondisk.IndirectPointerSlot]); err != nil {
			result = multierror.Append(result, err)
		}
	}

	in.Dtime = uint32(time.Now().Unix())
	if err := v.writeInode(inum, in); err != nil {
		result = multierror.Append(result, err)
	}
	v.freeInodeBit(inum)
	return result.ErrorOrNil()
}

// Mkdir creates a new, empty directory at path. The parent must already
// exist and must not already contain an entry named path's leaf.
func (v *Volume) Mkdir(path string) error {
	parentPath, leaf := splitPath(path)
	parentInode, err := v.resolve(parentPath)
	if err != nil {
		return err
	}
	if _, found, err := v.lookupDirent(parentInode, leaf); err != nil {
		return err
	} else if found {
		return ext2err.New(ext2err.Exists)
	}

	inum, err := v.createInode(ondisk.ModeDir)
	if err != nil {
		return err
	}
	if err := v.makeDirectoryBody(inum, parentInode); err != nil {
		return err
	}
	return v.appendDirent(parentInode, leaf, inum, ondisk.FtDir)
}

// CopyIn creates a new regular file at dst containing buf's bytes.
func (v *Volume) CopyIn(buf []byte, dst string) error {
	parentPath, leaf := splitPath(dst)
	parentInode, err := v.resolve(parentPath)
	if err != nil {
		return err
	}
	if _, found, err := v.lookupDirent(parentInode, leaf); err != nil {
		return err
	} else if found {
		return ext2err.New(ext2err.Exists)
	}

	inum, err := v.createInode(ondisk.ModeRegular)
	if err != nil {
		return err
	}
	if err := v.populateFileInode(inum, buf); err != nil {
		return err
	}
	return v.appendDirent(parentInode, leaf, inum, ondisk.FtRegFile)
}

// LinkSymbolic creates a symlink at linkPath whose stored target is the
// literal string target, NUL-terminated, in an allocated data block (no
// fast-symlink optimization).
func (v *Volume) LinkSymbolic(target, linkPath string) error {
	parentPath, leaf := splitPath(linkPath)
	parentInode, err := v.resolve(parentPath)
	if err != nil {
		return err
	}
	if _, found, err := v.lookupDirent(parentInode, leaf); err != nil {
		return err
	} else if found {
		return ext2err.New(ext2err.Exists)
	}

	inum, err := v.createInode(ondisk.ModeSymlink)
	if err != nil {
		return err
	}
	payload := append([]byte(target), 0)
	if err := v.populateFileInode(inum, payload); err != nil {
		return err
	}
	return v.appendDirent(parentInode, leaf, inum, ondisk.FtSymlink)
}

// Link creates a hard link at linkPath pointing at the existing, non-
// directory file src.
func (v *Volume) Link(src, linkPath string) error {
	srcInode, err := v.resolve(src)
	if err != nil {
		return err
	}
	srcIn, err := v.readInode(srcInode)
	if err != nil {
		return err
	}
	if srcIn.IsDir() {
		return ext2err.New(ext2err.IsDirectory)
	}

	parentPath, leaf := splitPath(linkPath)
	parentInode, err := v.resolve(parentPath)
	if err != nil {
		return err
	}
	if _, found, err := v.lookupDirent(parentInode, leaf); err != nil {
		return err
	} else if found {
		return ext2err.New(ext2err.Exists)
	}

	return v.appendDirent(parentInode, leaf, srcInode, srcIn.FileType())
}

// Remove deletes the non-directory entry at path, freeing its inode if this
// was its last link.
func (v *Volume) Remove(path string) error {
	parentPath, leaf := splitPath(path)
	parentInode, err := v.resolve(parentPath)
	if err != nil {
		return err
	}

	entry, found, err := v.lookupDirent(parentInode, leaf)
	if err != nil {
		return err
	}
	if !found {
		return ext2err.New(ext2err.NotFound)
	}

	in, err := v.readInode(entry.Header.Inode)
	if err != nil {
		return err
	}
	if in.IsDir() {
		return ext2err.New(ext2err.IsDirectory)
	}

	return v.deleteDirent(parentInode, leaf)
}

// Restore recovers the logically-deleted entry named path's leaf in path's
// parent directory; if the directory's gaps hold more than one such entry,
// the first in on-disk order is the one tried. Any failure to recover is
// reported as NotRecoverable, which propagates to callers as NotFound.
func (v *Volume) Restore(path string) error {
	parentPath, leaf := splitPath(path)
	parentInode, err := v.resolve(parentPath)
	if err != nil {
		return err
	}
	if err := v.restoreDirent(parentInode, leaf); err != nil {
		return ext2err.New(ext2err.NotRecoverable)
	}
	return nil
}

// Stat resolves path and returns its inode number, link count, size, and
// directory-entry file-type byte. Not one of the six CLI commands; a read
// accessor used by tests and by anything wanting to inspect a path.
func (v *Volume) Stat(path string) (inode uint32, linksCount uint16, size uint32, fileType uint8, err error) {
	inum, err := v.resolve(path)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	in, err := v.readInode(inum)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return inum, in.LinksCount, in.Size, in.FileType(), nil
}

// ReadFile returns the full contents of the regular file or symlink at path.
func (v *Volume) ReadFile(path string) ([]byte, error) {
	inum, err := v.resolve(path)
	if err != nil {
		return nil, err
	}
	in, err := v.readInode(inum)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, in.Size)
	for _, b := range v.readBlockList(in) {
		block := v.block(b)
		remaining := int(in.Size) - len(buf)
		if remaining > len(block) {
			remaining = len(block)
		}
		buf = append(buf, block[:remaining]...)
	}
	return buf, nil
}

// BlockList returns the data-block indices backing the file at path.
func (v *Volume) BlockList(path string) ([]uint32, error) {
	inum, err := v.resolve(path)
	if err != nil {
		return nil, err
	}
	in, err := v.readInode(inum)
	if err != nil {
		return nil, err
	}
	return v.readBlockList(in), nil
}
