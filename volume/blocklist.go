package volume

import (
	"encoding/binary"

	"github.com/xaionaro-go/bytesextra"

	"github.com/Carben-dev/ext2fs-simple-utilities/ondisk"
)

// hasIndirect reports whether in's singly-indirect pointer slot is in use.
func hasIndirect(in ondisk.RawInode) bool {
	return in.Block[ondisk.IndirectPointerSlot] != 0
}

// blockListLength derives the logical data-block count from i_blocks,
// discounting the indirect block itself when one is allocated.
func blockListLength(in ondisk.RawInode) int {
	n := int(in.Blocks / 2)
	if hasIndirect(in) {
		n--
	}
	if n < 0 {
		n = 0
	}
	return n
}

// readIndirectBlock decodes the 256 32-bit pointers stored in the block at
// indirectIdx.
func (v *Volume) readIndirectBlock(indirectIdx uint32) [ondisk.IndirectPointersPerBlock]uint32 {
	var ptrs [ondisk.IndirectPointersPerBlock]uint32
	stream := bytesextra.NewReadWriteSeeker(v.block(indirectIdx))
	binary.Read(stream, binary.LittleEndian, &ptrs)
	return ptrs
}

// readBlockList produces the ordered sequence of data-block indices for in,
// spanning the 12 direct pointers and the singly-indirect block.
func (v *Volume) readBlockList(in ondisk.RawInode) []uint32 {
	n := blockListLength(in)
	list := make([]uint32, 0, n)

	direct := n
	if direct > ondisk.DirectPointerCount {
		direct = ondisk.DirectPointerCount
	}
	for i := 0; i < direct; i++ {
		list = append(list, in.Block[i])
	}

	if n > ondisk.DirectPointerCount {
		ptrs := v.readIndirectBlock(in.Block[ondisk.IndirectPointerSlot])
		for i := 0; i < n-ondisk.DirectPointerCount; i++ {
			list = append(list, ptrs[i])
		}
	}
	return list
}

// writeBlockList stores list's first 12 entries directly in in.Block,
// allocating (and recording in i_blocks) an indirect block for any overflow.
// The volume's fixed 128 KiB size never reaches double indirection (spec.md
// §4.2): 12 + 256 blocks exceeds any file this toolkit can hold.
func (v *Volume) writeBlockList(in *ondisk.RawInode, list []uint32) error {
	for i := 0; i < ondisk.DirectPointerCount; i++ {
		if i < len(list) {
			in.Block[i] = list[i]
		} else {
			in.Block[i] = 0
		}
	}

	if len(list) <= ondisk.DirectPointerCount {
		return nil
	}

	overflow := list[ondisk.DirectPointerCount:]
	indirectIdx := in.Block[ondisk.IndirectPointerSlot]
	if indirectIdx == 0 {
		idx, err := v.allocateBlock()
		if err != nil {
			return err
		}
		indirectIdx = idx
		in.Block[ondisk.IndirectPointerSlot] = indirectIdx
		in.Blocks += 2
	}

	var ptrs [ondisk.IndirectPointersPerBlock]uint32
	copy(ptrs[:], overflow)
	stream := bytesextra.NewReadWriteSeeker(v.block(indirectIdx))
	return binary.Write(stream, binary.LittleEndian, &ptrs)
}
