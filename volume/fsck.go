package volume

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/Carben-dev/ext2fs-simple-utilities/ondisk"
)

// CheckResult holds the fix messages a Check run emitted, in order, and the
// total repaired-inconsistency count the checker reports at the end.
type CheckResult struct {
	Messages []string
	N        int
}

// Summary returns the checker's final stdout line (spec.md §4.7).
func (res CheckResult) Summary() string {
	if res.N == 0 {
		return "No file system inconsistencies detected!"
	}
	return fmt.Sprintf("%d file system inconsistencies repaired!", res.N)
}

func countZeroBits(getBit func(int) bool, total uint32) int {
	n := 0
	for i := 0; i < int(total); i++ {
		if !getBit(i) {
			n++
		}
	}
	return n
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// Check runs the two-phase consistency checker: phase 1 reconciles the SB
// and GD free counters against the bitmaps; phase 2 walks the directory
// tree from the root fixing entry-type mismatches, bitmap membership, and
// spurious deletion timestamps (spec.md §4.7).
func (v *Volume) Check() CheckResult {
	var res CheckResult

	sb := v.Superblock()
	gd := v.GroupDescriptor()
	blockBitmap := v.blockBitmap()
	inodeBitmap := v.inodeBitmap()
	blockZeros := uint32(countZeroBits(blockBitmap.Get, sb.BlocksCount))
	inodeZeros := uint32(countZeroBits(inodeBitmap.Get, sb.InodesCount))

	type counterCheck struct {
		owner string
		field string
		have  uint32
	}
	checks := []counterCheck{
		{"superblock", "free blocks", sb.FreeBlocksCount},
		{"superblock", "free inodes", sb.FreeInodesCount},
		{"block group", "free blocks", uint32(gd.FreeBlocksCount)},
		{"block group", "free inodes", uint32(gd.FreeInodesCount)},
	}
	for _, c := range checks {
		want := blockZeros
		if c.field == "free inodes" {
			want = inodeZeros
		}
		if c.have != want {
			diff := absDiff(c.have, want)
			res.Messages = append(res.Messages, fmt.Sprintf(
				"Fixed: %s's %s counter was off by %d compared to the bitmap",
				c.owner, c.field, diff,
			))
			res.N += int(diff)
		}
	}

	sb.FreeBlocksCount = blockZeros
	sb.FreeInodesCount = inodeZeros
	gd.FreeBlocksCount = uint16(blockZeros)
	gd.FreeInodesCount = uint16(inodeZeros)
	v.SetSuperblock(sb)
	v.SetGroupDescriptor(gd)

	v.checkTree(ondisk.RootInode, ondisk.RootInode, &res)

	return res
}

// checkTree implements phase 2's recursive walk for one directory, starting
// from dirInode with parentInode as its ".." target.
func (v *Volume) checkTree(dirInode, parentInode uint32, res *CheckResult) {
	entries, _, err := v.scanDirents(dirInode)
	if err != nil {
		return
	}

	for _, e := range entries {
		if slices.Contains([]uint32{dirInode, parentInode}, e.Header.Inode) {
			continue
		}

		in, err := v.readInode(e.Header.Inode)
		if err != nil {
			continue
		}

		expected := in.FileType()
		if expected != e.Header.FileType {
			block := v.block(v.direntBlock(dirInode, e))
			setDirentFileType(block, e.Offset, expected)
			res.Messages = append(res.Messages, fmt.Sprintf(
				"Fixed: Entry type vs inode mismatch: inode [%d]", e.Header.Inode,
			))
			res.N++
		}

		if !v.inodeBitmap().Get(int(e.Header.Inode - 1)) {
			v.markInodeInUse(e.Header.Inode)
			res.Messages = append(res.Messages, fmt.Sprintf(
				"Fixed: inode [%d] not marked as in-use", e.Header.Inode,
			))
			res.N++
		}

		dataBlocks := v.readBlockList(in)
		if hasIndirect(in) {
			dataBlocks = append(dataBlocks, in.Block[ondisk.IndirectPointerSlot])
		}
		for _, b := range dataBlocks {
			if !v.blockBitmap().Get(int(b - 1)) {
				v.markBlockInUse(b)
				res.Messages = append(res.Messages, fmt.Sprintf(
					"Fixed: %d in-use data blocks not marked in data bitmap for inode: [%d]",
					b, e.Header.Inode,
				))
				res.N++
			}
		}

		if in.Dtime != 0 {
			in.Dtime = 0
			v.writeInode(e.Header.Inode, in)
			res.Messages = append(res.Messages, fmt.Sprintf(
				"Fixed: valid inode marked for deletion: [%d]", e.Header.Inode,
			))
			res.N++
		}

		if in.IsDir() {
			v.checkTree(e.Header.Inode, dirInode, res)
		}
	}
}

// direntBlock returns the physical block number holding e, one of
// dirInode's directory entries.
func (v *Volume) direntBlock(dirInode uint32, e direntRef) uint32 {
	in, _ := v.readInode(dirInode)
	return v.readBlockList(in)[e.BlockIndex]
}

func setDirentFileType(block []byte, offset int, fileType uint8) {
	block[offset+7] = fileType
}

func (v *Volume) markInodeInUse(inum uint32) {
	v.inodeBitmap().Set(int(inum-1), true)
	sb := v.Superblock()
	gd := v.GroupDescriptor()
	sb.FreeInodesCount--
	gd.FreeInodesCount--
	v.SetSuperblock(sb)
	v.SetGroupDescriptor(gd)
}

func (v *Volume) markBlockInUse(block uint32) {
	v.blockBitmap().Set(int(block-1), true)
	sb := v.Superblock()
	gd := v.GroupDescriptor()
	sb.FreeBlocksCount--
	gd.FreeBlocksCount--
	v.SetSuperblock(sb)
	v.SetGroupDescriptor(gd)
}
