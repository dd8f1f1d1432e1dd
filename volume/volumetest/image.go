// Package volumetest builds small, pristine, in-memory ext2 images for
// tests, mirroring the teacher's testing/images.go LoadDiskImage helper: a
// ready-to-use image without a real file or a real mmap.
package volumetest

import (
	"bytes"
	"encoding/binary"

	"github.com/Carben-dev/ext2fs-simple-utilities/ondisk"
	"github.com/Carben-dev/ext2fs-simple-utilities/volume"
)

const (
	totalBlocks = 128
	totalInodes = 32

	blockBitmapBlock = 3
	inodeBitmapBlock = 4
	inodeTableBlock  = 5
	inodeTableBlocks = (totalInodes * ondisk.InodeSize) / ondisk.BlockSize
	firstDataBlock   = inodeTableBlock + inodeTableBlocks

	lostFoundInode = ondisk.FirstNonReservedInode
)

func blockOffset(index int) int { return (index - 1) * ondisk.BlockSize }

func setBit(bm []byte, i int) {
	bm[i/8] |= 1 << uint(i%8)
}

func writeStruct(data []byte, offset int, v any) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	copy(data[offset:], buf.Bytes())
}

func inodeOffset(inum uint32) int {
	return blockOffset(inodeTableBlock) + int(inum-1)*ondisk.InodeSize
}

func writeInode(data []byte, inum uint32, in ondisk.RawInode) {
	writeStruct(data, inodeOffset(inum), &in)
}

func writeDirentAt(data []byte, offset int, inode uint32, recLen uint16, name string, fileType uint8) {
	h := ondisk.DirentHeader{Inode: inode, RecLen: recLen, NameLen: uint8(len(name)), FileType: fileType}
	writeStruct(data, offset, &h)
	copy(data[offset+ondisk.DirentHeaderSize:], name)
}

// New builds a pristine 128 KiB image containing only the root directory
// and an empty lost+found, and opens it as a Volume.
func New() (*volume.Volume, error) {
	data := make([]byte, volume.ImageSize)

	rootBlock := uint32(firstDataBlock)
	lostFoundBlock := uint32(firstDataBlock + 1)
	lastUsedBlock := int(lostFoundBlock)

	blockBitmap := make([]byte, (totalBlocks+7)/8)
	for i := 0; i < lastUsedBlock; i++ {
		setBit(blockBitmap, i)
	}
	copy(data[blockOffset(blockBitmapBlock):], blockBitmap)

	inodeBitmap := make([]byte, (totalInodes+7)/8)
	for i := 0; i < ondisk.FirstNonReservedInode; i++ {
		setBit(inodeBitmap, i)
	}
	copy(data[blockOffset(inodeBitmapBlock):], inodeBitmap)

	freeBlocks := uint32(totalBlocks - lastUsedBlock)
	freeInodes := uint32(totalInodes - ondisk.FirstNonReservedInode)

	sb := ondisk.Superblock{
		InodesCount:     totalInodes,
		BlocksCount:     totalBlocks,
		FreeBlocksCount: freeBlocks,
		FreeInodesCount: freeInodes,
		FirstDataBlock:  firstDataBlock,
		Magic:           0xEF53,
	}
	writeStruct(data, blockOffset(ondisk.SuperblockBlock), &sb)

	gd := ondisk.GroupDescriptor{
		BlockBitmapBlock: blockBitmapBlock,
		InodeBitmapBlock: inodeBitmapBlock,
		InodeTableBlock:  inodeTableBlock,
		FreeBlocksCount:  uint16(freeBlocks),
		FreeInodesCount:  uint16(freeInodes),
		UsedDirsCount:    2,
	}
	writeStruct(data, blockOffset(ondisk.GroupDescBlock), &gd)

	rootIn := ondisk.RawInode{Mode: ondisk.ModeDir, Size: ondisk.BlockSize, LinksCount: 3, Blocks: 2}
	rootIn.Block[0] = rootBlock
	writeInode(data, ondisk.RootInode, rootIn)

	lfIn := ondisk.RawInode{Mode: ondisk.ModeDir, Size: ondisk.BlockSize, LinksCount: 2, Blocks: 2}
	lfIn.Block[0] = lostFoundBlock
	writeInode(data, lostFoundInode, lfIn)

	rootOff := blockOffset(int(rootBlock))
	writeDirentAt(data, rootOff+0, ondisk.RootInode, 12, ".", ondisk.FtDir)
	writeDirentAt(data, rootOff+12, ondisk.RootInode, 12, "..", ondisk.FtDir)
	writeDirentAt(data, rootOff+24, lostFoundInode, ondisk.BlockSize-24, "lost+found", ondisk.FtDir)

	lfOff := blockOffset(int(lostFoundBlock))
	writeDirentAt(data, lfOff+0, lostFoundInode, 12, ".", ondisk.FtDir)
	writeDirentAt(data, lfOff+12, ondisk.RootInode, ondisk.BlockSize-12, "..", ondisk.FtDir)

	return volume.OpenBytes(data)
}
