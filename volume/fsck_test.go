package volume

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carben-dev/ext2fs-simple-utilities/ondisk"
)

// buildCheckerFixture mirrors volumetest.New but lives in this internal test
// file so it can reach the unexported bitmap accessors the corruption
// scenario needs to poke directly.
func buildCheckerFixture(t *testing.T) *Volume {
	const (
		totalBlocks      = 128
		totalInodes      = 32
		blockBitmapBlock = 3
		inodeBitmapBlock = 4
		inodeTableBlock  = 5
		inodeTableBlocks = (totalInodes * ondisk.InodeSize) / ondisk.BlockSize
		firstDataBlock   = inodeTableBlock + inodeTableBlocks
		lostFoundInode   = ondisk.FirstNonReservedInode
	)
	blockOffset := func(index int) int { return (index - 1) * ondisk.BlockSize }
	setBit := func(bm []byte, i int) { bm[i/8] |= 1 << uint(i%8) }
	writeStruct := func(data []byte, offset int, v any) {
		buf := new(bytes.Buffer)
		binary.Write(buf, binary.LittleEndian, v)
		copy(data[offset:], buf.Bytes())
	}
	inodeOffset := func(inum uint32) int {
		return blockOffset(inodeTableBlock) + int(inum-1)*ondisk.InodeSize
	}
	writeDirentAt := func(data []byte, offset int, inode uint32, recLen uint16, name string, fileType uint8) {
		h := ondisk.DirentHeader{Inode: inode, RecLen: recLen, NameLen: uint8(len(name)), FileType: fileType}
		writeStruct(data, offset, &h)
		copy(data[offset+ondisk.DirentHeaderSize:], name)
	}

	data := make([]byte, ImageSize)
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
	writeStruct(data, inodeOffset(ondisk.RootInode), &rootIn)

	lfIn := ondisk.RawInode{Mode: ondisk.ModeDir, Size: ondisk.BlockSize, LinksCount: 2, Blocks: 2}
	lfIn.Block[0] = lostFoundBlock
	writeStruct(data, inodeOffset(lostFoundInode), &lfIn)

	rootOff := blockOffset(int(rootBlock))
	writeDirentAt(data, rootOff+0, ondisk.RootInode, 12, ".", ondisk.FtDir)
	writeDirentAt(data, rootOff+12, ondisk.RootInode, 12, "..", ondisk.FtDir)
	writeDirentAt(data, rootOff+24, lostFoundInode, ondisk.BlockSize-24, "lost+found", ondisk.FtDir)

	lfOff := blockOffset(int(lostFoundBlock))
	writeDirentAt(data, lfOff+0, lostFoundInode, 12, ".", ondisk.FtDir)
	writeDirentAt(data, lfOff+12, ondisk.RootInode, ondisk.BlockSize-12, "..", ondisk.FtDir)

	v, err := OpenBytes(data)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func TestCheckOnPristineImageIsClean(t *testing.T) {
	v := buildCheckerFixture(t)
	res := v.Check()
	assert.Empty(t, res.Messages)
	assert.Equal(t, 0, res.N)
	assert.Equal(t, "No file system inconsistencies detected!", res.Summary())
}

// TestCheckRepairsDesyncedCountersAndMissingBlockBit reproduces spec.md §8
// scenario 6: a live inode's data-block bit has been cleared (as if its
// allocation was never marked), and both the SB and GD free-blocks counters
// read 3 less than the bitmap's current free-block count. Check should
// report exactly three fix lines (SB counter, GD counter, one in-use block
// not marked) totaling N=7 (3+3+1), and a second run should find nothing
// left to fix.
func TestCheckRepairsDesyncedCountersAndMissingBlockBit(t *testing.T) {
	v := buildCheckerFixture(t)
	require.NoError(t, v.CopyIn([]byte("hello world"), "/hello"))

	blocks, err := v.BlockList("/hello")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	corruptedBlock := blocks[0]

	// trueFreeBlocks is the bitmap's free-block count before any corruption;
	// SB and GD are synced to it by construction (every CopyIn allocation
	// keeps both counters in lockstep with the bitmap).
	trueFreeBlocks := v.Superblock().FreeBlocksCount

	// Simulate the missing in-use mark: the block is still referenced by
	// /hello's inode, but its bitmap bit now reads free.
	v.blockBitmap().Set(int(corruptedBlock-1), false)
	freeBlocksAfterBitClear := trueFreeBlocks + 1

	// Desync both counters so each reads 3 less than the bitmap's current
	// (post-bit-clear) free count — the "off by 3" Check() will report.
	sb := v.Superblock()
	sb.FreeBlocksCount = freeBlocksAfterBitClear - 3
	v.SetSuperblock(sb)
	gd := v.GroupDescriptor()
	gd.FreeBlocksCount = uint16(freeBlocksAfterBitClear - 3)
	v.SetGroupDescriptor(gd)

	res := v.Check()

	assert.Len(t, res.Messages, 3)
	assert.Equal(t, 7, res.N)

	clean := v.Check()
	assert.Empty(t, clean.Messages)
	assert.Equal(t, 0, clean.N)
}
