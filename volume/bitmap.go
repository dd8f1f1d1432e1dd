package volume

import (
	"github.com/boljen/go-bitmap"

	"github.com/Carben-dev/ext2fs-simple-utilities/ext2err"
	"github.com/Carben-dev/ext2fs-simple-utilities/ondisk"
)

// bitmapByteLen returns the number of bytes needed to hold one bit per
// object in [0, bits); only this validated prefix of the on-disk bitmap
// block is ever consulted.
func bitmapByteLen(bits uint32) int {
	return int((bits + 7) / 8)
}

// blockBitmap returns the block bitmap as a view aliasing the mapped image:
// Set calls mutate the image directly, matching how allocatormap.go's
// Allocator wraps an in-place bitmap.Bitmap rather than copying it out.
func (v *Volume) blockBitmap() bitmap.Bitmap {
	sb := v.Superblock()
	gd := v.GroupDescriptor()
	off := int(gd.BlockBitmapBlock-1) * ondisk.BlockSize
	n := bitmapByteLen(sb.BlocksCount)
	return bitmap.Bitmap(v.data[off : off+n])
}

// inodeBitmap returns the inode bitmap, aliasing the mapped image.
func (v *Volume) inodeBitmap() bitmap.Bitmap {
	sb := v.Superblock()
	gd := v.GroupDescriptor()
	off := int(gd.InodeBitmapBlock-1) * ondisk.BlockSize
	n := bitmapByteLen(sb.InodesCount)
	return bitmap.Bitmap(v.data[off : off+n])
}

// allocateInode scans the inode bitmap byte by byte, LSB first, for the
// first clear bit above the reserved range, sets it, and decrements both
// free-inode counters. Bit k corresponds to inode k+1.
func (v *Volume) allocateInode() (uint32, error) {
	sb := v.Superblock()
	gd := v.GroupDescriptor()
	if sb.FreeInodesCount == 0 || gd.FreeInodesCount == 0 {
		return 0, ext2err.New(ext2err.NoSpace)
	}

	bm := v.inodeBitmap()
	for i := uint32(ondisk.FirstNonReservedInode - 1); i < sb.InodesCount; i++ {
		if bm.Get(int(i)) {
			continue
		}
		bm.Set(int(i), true)
		sb.FreeInodesCount--
		gd.FreeInodesCount--
		v.SetSuperblock(sb)
		v.SetGroupDescriptor(gd)
		return i + 1, nil
	}
	return 0, ext2err.New(ext2err.NoSpace)
}

// freeInodeBit clears inum's bitmap bit and bumps both free-inode counters.
// Double-free is not detected, matching spec.
func (v *Volume) freeInodeBit(inum uint32) {
	bm := v.inodeBitmap()
	bm.Set(int(inum-1), false)

	sb := v.Superblock()
	gd := v.GroupDescriptor()
	sb.FreeInodesCount++
	gd.FreeInodesCount++
	v.SetSuperblock(sb)
	v.SetGroupDescriptor(gd)
}

// restoreInodeBit re-marks inum's bit in use. It fails if the bit is
// already set: the slot has been reused since the inode was freed and
// recovery is impossible.
func (v *Volume) restoreInodeBit(inum uint32) error {
	bm := v.inodeBitmap()
	if bm.Get(int(inum - 1)) {
		return ext2err.New(ext2err.NotRecoverable)
	}
	bm.Set(int(inum-1), true)

	sb := v.Superblock()
	gd := v.GroupDescriptor()
	sb.FreeInodesCount--
	gd.FreeInodesCount--
	v.SetSuperblock(sb)
	v.SetGroupDescriptor(gd)
	return nil
}

// allocateBlock scans the block bitmap for the first clear bit, sets it,
// and decrements both free-block counters. Bit k corresponds to block k+1.
func (v *Volume) allocateBlock() (uint32, error) {
	sb := v.Superblock()
	gd := v.GroupDescriptor()
	if sb.FreeBlocksCount == 0 || gd.FreeBlocksCount == 0 {
		return 0, ext2err.New(ext2err.NoSpace)
	}

	bm := v.blockBitmap()
	for i := uint32(0); i < sb.BlocksCount; i++ {
		if bm.Get(int(i)) {
			continue
		}
		bm.Set(int(i), true)
		sb.FreeBlocksCount--
		gd.FreeBlocksCount--
		v.SetSuperblock(sb)
		v.SetGroupDescriptor(gd)
		return i + 1, nil
	}
	return 0, ext2err.New(ext2err.NoSpace)
}

// freeBlockBit clears block's bitmap bit and bumps both free-block counters.
func (v *Volume) freeBlockBit(block uint32) error {
	bm := v.blockBitmap()
	bm.Set(int(block-1), false)

	sb := v.Superblock()
	gd := v.GroupDescriptor()
	sb.FreeBlocksCount++
	gd.FreeBlocksCount++
	v.SetSuperblock(sb)
	v.SetGroupDescriptor(gd)
	return nil
}

// restoreBlockBit re-marks block's bit in use, failing if it is already set.
func (v *Volume) restoreBlockBit(block uint32) error {
	bm := v.blockBitmap()
	if bm.Get(int(block - 1)) {
		return ext2err.New(ext2err.NotRecoverable)
	}
	bm.Set(int(block-1), true)

	sb := v.Superblock()
	gd := v.GroupDescriptor()
	sb.FreeBlocksCount--
	gd.FreeBlocksCount--
	v.SetSuperblock(sb)
	v.SetGroupDescriptor(gd)
	return nil
}
