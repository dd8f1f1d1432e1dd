package volume

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
	"github.com/xaionaro-go/bytesextra"

	"github.com/Carben-dev/ext2fs-simple-utilities/ext2err"
	"github.com/Carben-dev/ext2fs-simple-utilities/ondisk"
)

// direntRef identifies a live directory entry by its position within a
// directory's block-list, so callers can patch it in place.
type direntRef struct {
	Header     ondisk.DirentHeader
	Name       string
	BlockIndex int
	Offset     int
}

// getDirentHeader decodes the fixed header at offset within block.
func getDirentHeader(block []byte, offset int) ondisk.DirentHeader {
	var h ondisk.DirentHeader
	stream := bytesextra.NewReadWriteSeeker(block[offset : offset+ondisk.DirentHeaderSize])
	binary.Read(stream, binary.LittleEndian, &h)
	return h
}

// putDirentHeader writes h and name sequentially at offset within block and
// zeroes the padding after the name up to the entry's 4-byte-aligned size.
// Bytes beyond that, up to h.RecLen, are left as they are.
func putDirentHeader(block []byte, offset int, h ondisk.DirentHeader, name string) {
	w := bytewriter.New(block[offset:])
	binary.Write(w, binary.LittleEndian, &h)
	w.Write([]byte(name))
	nameEnd := offset + ondisk.DirentHeaderSize + len(name)
	for i := nameEnd; i < offset+ondisk.RoundUp4(ondisk.DirentHeaderSize+len(name)); i++ {
		block[i] = 0
	}
}

// setRecLen patches only the rec_len field of the entry at offset.
func setRecLen(block []byte, offset int, recLen uint16) {
	binary.LittleEndian.PutUint16(block[offset+4:offset+6], recLen)
}

// scanDirents walks every data block of dirInode, returning the live entries
// in on-disk order. Dead entries (absorbed into a predecessor's rec_len) are
// never visited since the walk advances strictly by rec_len.
func (v *Volume) scanDirents(dirInode uint32) ([]direntRef, []uint32, error) {
	in, err := v.readInode(dirInode)
	if err != nil {
		return nil, nil, err
	}
	blocks := v.readBlockList(in)

	var entries []direntRef
	for bi, blockNum := range blocks {
		data := v.block(blockNum)
		off := 0
		for off < ondisk.BlockSize {
			h := getDirentHeader(data, off)
			if h.RecLen == 0 {
				break
			}
			name := string(data[off+ondisk.DirentHeaderSize : off+ondisk.DirentHeaderSize+int(h.NameLen)])
			entries = append(entries, direntRef{Header: h, Name: name, BlockIndex: bi, Offset: off})
			off += int(h.RecLen)
		}
	}
	return entries, blocks, nil
}

// lookupDirent returns the live entry named name in dirInode, if any.
func (v *Volume) lookupDirent(dirInode uint32, name string) (direntRef, bool, error) {
	entries, _, err := v.scanDirents(dirInode)
	if err != nil {
		return direntRef{}, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, true, nil
		}
	}
	return direntRef{}, false, nil
}

// appendDirent adds a new entry to dirInode referencing targetInode, either
// by splitting the slack of the last block's last entry or, failing that,
// allocating a fresh data block (spec.md §4.3).
func (v *Volume) appendDirent(dirInode uint32, name string, targetInode uint32, fileType uint8) error {
	in, err := v.readInode(dirInode)
	if err != nil {
		return err
	}
	blocks := v.readBlockList(in)
	lastBlockNum := blocks[len(blocks)-1]
	data := v.block(lastBlockNum)

	off, lastOff := 0, 0
	var lastHeader ondisk.DirentHeader
	for off < ondisk.BlockSize {
		lastHeader = getDirentHeader(data, off)
		lastOff = off
		off += int(lastHeader.RecLen)
	}

	oldTrue := ondisk.RoundUp4(ondisk.DirentHeaderSize + int(lastHeader.NameLen))
	newTrue := ondisk.RoundUp4(ondisk.DirentHeaderSize + len(name))
	slack := int(lastHeader.RecLen) - oldTrue

	if slack >= newTrue {
		setRecLen(data, lastOff, uint16(oldTrue))
		newOff := lastOff + oldTrue
		newHeader := ondisk.DirentHeader{
			Inode:    targetInode,
			RecLen:   uint16(ondisk.BlockSize - newOff),
			NameLen:  uint8(len(name)),
			FileType: fileType,
		}
		putDirentHeader(data, newOff, newHeader, name)
	} else {
		newBlockNum, err := v.allocateBlock()
		if err != nil {
			return err
		}
		blocks = append(blocks, newBlockNum)
		in.Blocks += 2
		in.Size += ondisk.BlockSize
		if err := v.writeBlockList(&in, blocks); err != nil {
			return err
		}
		if err := v.writeInode(dirInode, in); err != nil {
			return err
		}

		nd := v.block(newBlockNum)
		newHeader := ondisk.DirentHeader{
			Inode:    targetInode,
			RecLen:   ondisk.BlockSize,
			NameLen:  uint8(len(name)),
			FileType: fileType,
		}
		putDirentHeader(nd, 0, newHeader, name)
	}

	target, err := v.readInode(targetInode)
	if err != nil {
		return err
	}
	target.LinksCount++
	return v.writeInode(targetInode, target)
}

// deleteDirent logically removes name from dirInode: the victim's predecessor
// absorbs its rec_len, and the victim's bytes are left untouched so restore
// can find them later. The target inode's link count is decremented, freeing
// the inode if it reaches zero.
func (v *Volume) deleteDirent(dirInode uint32, name string) error {
	in, err := v.readInode(dirInode)
	if err != nil {
		return err
	}
	blocks := v.readBlockList(in)

	for _, blockNum := range blocks {
		data := v.block(blockNum)
		off, prevOff := 0, -1
		for off < ondisk.BlockSize {
			h := getDirentHeader(data, off)
			entryName := string(data[off+ondisk.DirentHeaderSize : off+ondisk.DirentHeaderSize+int(h.NameLen)])
			if entryName == name {
				if prevOff >= 0 {
					prevHeader := getDirentHeader(data, prevOff)
					setRecLen(data, prevOff, prevHeader.RecLen+h.RecLen)
				}
				return v.decrementLinkOrFree(h.Inode)
			}
			prevOff = off
			off += int(h.RecLen)
		}
	}
	return ext2err.New(ext2err.NotFound)
}

// decrementLinkOrFree decrements inum's link count, freeing the inode
// (§4.4) if it has just dropped to zero.
func (v *Volume) decrementLinkOrFree(inum uint32) error {
	in, err := v.readInode(inum)
	if err != nil {
		return err
	}
	in.LinksCount--
	if err := v.writeInode(inum, in); err != nil {
		return err
	}
	if in.LinksCount == 0 {
		return v.freeInode(inum)
	}
	return nil
}

// restoreDirent gap-walks the slack following every live entry of dirInode
// looking for a candidate named name, and splices it back in if found
// (spec.md §4.3). Only the first candidate named name, in on-disk order, is
// tried: it reports NotRecoverable if there is none, or if that one cannot
// be recovered.
func (v *Volume) restoreDirent(dirInode uint32, name string) error {
	in, err := v.readInode(dirInode)
	if err != nil {
		return err
	}
	blocks := v.readBlockList(in)

	for _, blockNum := range blocks {
		data := v.block(blockNum)
		off := 0
		for off < ondisk.BlockSize {
			h := getDirentHeader(data, off)
			trueSize := ondisk.RoundUp4(ondisk.DirentHeaderSize + int(h.NameLen))
			slackEnd := off + int(h.RecLen)
			candOff := off + trueSize

			for slackEnd-candOff >= ondisk.DirentHeaderSize+4 {
				cand := getDirentHeader(data, candOff)
				if cand.RecLen == 0 || cand.NameLen == 0 {
					break
				}
				candName := string(data[candOff+ondisk.DirentHeaderSize : candOff+ondisk.DirentHeaderSize+int(cand.NameLen)])
				candTrue := ondisk.RoundUp4(ondisk.DirentHeaderSize + int(cand.NameLen))
				if candName == name {
					return v.spliceRestore(data, off, h, candOff, cand, slackEnd)
				}
				candOff += candTrue
			}
			off += int(h.RecLen)
		}
	}
	return ext2err.New(ext2err.NotRecoverable)
}

// spliceRestore validates cand's inode is recoverable, re-marks its bitmap
// bits, clears dtime, and splices the entry back into the live chain.
func (v *Volume) spliceRestore(
	data []byte,
	liveOff int, live ondisk.DirentHeader,
	candOff int, cand ondisk.DirentHeader,
	slackEnd int,
) error {
	target, err := v.readInode(cand.Inode)
	if err != nil {
		return ext2err.New(ext2err.NotRecoverable)
	}
	if target.Dtime == 0 {
		return ext2err.New(ext2err.NotRecoverable)
	}

	if err := v.restoreInodeBit(cand.Inode); err != nil {
		return ext2err.New(ext2err.NotRecoverable)
	}

	blockList := v.readBlockList(target)
	for _, b := range blockList {
		if err := v.restoreBlockBit(b); err != nil {
			return ext2err.New(ext2err.NotRecoverable)
		}
	}
	if hasIndirect(target) {
		if err := v.restoreBlockBit(target.Block[ondisk.IndirectPointerSlot]); err != nil {
			return ext2err.New(ext2err.NotRecoverable)
		}
	}

	target.Dtime = 0
	target.LinksCount++
	if err := v.writeInode(cand.Inode, target); err != nil {
		return err
	}

	setRecLen(data, liveOff, uint16(candOff-liveOff))
	_ = live
	setRecLen(data, candOff, uint16(slackEnd-candOff))
	return nil
}
