// Package volume implements the ext2 volume manager: a Volume owns a
// memory-mapped 128 KiB image for its lifetime and exposes the layered
// primitives (bitmap allocation, inode block-lists, directory entries, path
// resolution, high-level operations, and the consistency checker) that the
// command-line tools compose.
package volume

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/xaionaro-go/bytesextra"

	"github.com/Carben-dev/ext2fs-simple-utilities/ext2err"
	"github.com/Carben-dev/ext2fs-simple-utilities/ondisk"
)

// ImageSize is the only volume size this toolkit supports.
const ImageSize = 128 * 1024

// Volume owns the memory-mapped image for its entire lifetime. Sub-views
// (bitmap slices, inode records, directory blocks) are borrowed from it for
// the duration of a single high-level operation and never outlive it.
type Volume struct {
	file  *os.File
	data  mmap.MMap
	owned bool // true if data came from a real mmap.Map and must be Unmap()'d
}

// Open maps path's contents read-write and returns a Volume bound to it. The
// caller must Close the Volume when done to release the mapping and the
// underlying file descriptor.
func Open(path string) (*Volume, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	if len(m) != ImageSize {
		m.Unmap()
		f.Close()
		return nil, fmt.Errorf("volume: image %s is %d bytes, want %d", path, len(m), ImageSize)
	}

	return &Volume{file: f, data: m, owned: true}, nil
}

// OpenBytes wraps an in-memory image buffer as a Volume without a real file
// or a real mmap, mirroring testing/images.go's LoadDiskImage helper; it
// exists for volumetest's synthetic images.
func OpenBytes(data []byte) (*Volume, error) {
	if len(data) != ImageSize {
		return nil, fmt.Errorf("volume: image is %d bytes, want %d", len(data), ImageSize)
	}
	return &Volume{data: mmap.MMap(data)}, nil
}

// Close unmaps the image (if it was really mmap'd) and closes the backing
// file (if there was one), reporting both failures if they both occur.
func (v *Volume) Close() error {
	var unmapErr, closeErr error
	if v.owned {
		unmapErr = v.data.Unmap()
	}
	if v.file != nil {
		closeErr = v.file.Close()
	}
	switch {
	case unmapErr != nil && closeErr != nil:
		return fmt.Errorf("volume: unmap failed (%w) and close failed (%s)", unmapErr, closeErr)
	case unmapErr != nil:
		return unmapErr
	case closeErr != nil:
		return closeErr
	}
	return nil
}

// block returns the raw bytes of the 1-based block index, aliasing the
// mapped region directly so writes through the returned slice mutate the
// image in place. Block 1 occupies the image's first BlockSize bytes: this
// fixed image has no separate reserved boot block, so 1-based numbering
// packs exactly BlocksCount blocks into the image with no gap.
func (v *Volume) block(index uint32) []byte {
	off := int(index-1) * ondisk.BlockSize
	return v.data[off : off+ondisk.BlockSize]
}

// Superblock decodes and returns the superblock at block 1.
func (v *Volume) Superblock() ondisk.Superblock {
	var sb ondisk.Superblock
	stream := bytesextra.NewReadWriteSeeker(v.block(ondisk.SuperblockBlock))
	binary.Read(stream, binary.LittleEndian, &sb)
	return sb
}

// SetSuperblock writes sb back to block 1.
func (v *Volume) SetSuperblock(sb ondisk.Superblock) {
	stream := bytesextra.NewReadWriteSeeker(v.block(ondisk.SuperblockBlock))
	binary.Write(stream, binary.LittleEndian, &sb)
}

// GroupDescriptor decodes and returns the (single) group descriptor at block 2.
func (v *Volume) GroupDescriptor() ondisk.GroupDescriptor {
	var gd ondisk.GroupDescriptor
	stream := bytesextra.NewReadWriteSeeker(v.block(ondisk.GroupDescBlock)[:binary.Size(gd)])
	binary.Read(stream, binary.LittleEndian, &gd)
	return gd
}

// SetGroupDescriptor writes gd back to block 2.
func (v *Volume) SetGroupDescriptor(gd ondisk.GroupDescriptor) {
	stream := bytesextra.NewReadWriteSeeker(v.block(ondisk.GroupDescBlock)[:binary.Size(gd)])
	binary.Write(stream, binary.LittleEndian, &gd)
}

// inodeByteOffset returns the byte offset of inum's 128-byte record within
// the mapped image.
func (v *Volume) inodeByteOffset(inum uint32) int {
	gd := v.GroupDescriptor()
	return int(gd.InodeTableBlock-1)*ondisk.BlockSize + int(inum-1)*ondisk.InodeSize
}

// readInode decodes the on-disk record for inum.
func (v *Volume) readInode(inum uint32) (ondisk.RawInode, error) {
	var in ondisk.RawInode
	off := v.inodeByteOffset(inum)
	if inum == 0 || off+ondisk.InodeSize > len(v.data) {
		return in, ext2err.New(ext2err.NotFound)
	}
	stream := bytesextra.NewReadWriteSeeker(v.data[off : off+ondisk.InodeSize])
	if err := binary.Read(stream, binary.LittleEndian, &in); err != nil {
		return in, err
	}
	return in, nil
}

// writeInode encodes in back to inum's on-disk record.
func (v *Volume) writeInode(inum uint32, in ondisk.RawInode) error {
	off := v.inodeByteOffset(inum)
	stream := bytesextra.NewReadWriteSeeker(v.data[off : off+ondisk.InodeSize])
	return binary.Write(stream, binary.LittleEndian, &in)
}
