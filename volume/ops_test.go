package volume_test

import (
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carben-dev/ext2fs-simple-utilities/ondisk"
	"github.com/Carben-dev/ext2fs-simple-utilities/volume"
	"github.com/Carben-dev/ext2fs-simple-utilities/volume/volumetest"
)

func newVolume(t *testing.T) *volume.Volume {
	v, err := volumetest.New()
	require.NoError(t, err, "building synthetic image")
	t.Cleanup(func() { v.Close() })
	return v
}

func TestMkdirNestedTree(t *testing.T) {
	v := newVolume(t)

	require.NoError(t, v.Mkdir("/a"))
	aInode, _, _, aType, err := v.Stat("/a")
	require.NoError(t, err)
	assert.Equal(t, uint8(ondisk.FtDir), aType)

	require.NoError(t, v.Mkdir("/a/b"))
	bInode, _, _, _, err := v.Stat("/a/b")
	require.NoError(t, err)

	require.NoError(t, v.Mkdir("/a/b/c"))
	cInode, _, _, _, err := v.Stat("/a/b/c")
	require.NoError(t, err)

	assert.Greater(t, bInode, aInode, "inodes must allocate in increasing order")
	assert.Greater(t, cInode, bInode, "inodes must allocate in increasing order")
}

func TestMkdirTrailingSlashNormalization(t *testing.T) {
	v1 := newVolume(t)
	v2 := newVolume(t)

	err1 := v1.Mkdir("/a/")
	err2 := v2.Mkdir("/a")
	assert.NoError(t, err1)
	assert.NoError(t, err2)

	inode1, _, _, _, err := v1.Stat("/a")
	require.NoError(t, err)
	inode2, _, _, _, err := v2.Stat("/a")
	require.NoError(t, err)
	assert.Equal(t, inode2, inode1)
}

func TestMkdirExistingNameFails(t *testing.T) {
	v := newVolume(t)
	require.NoError(t, v.Mkdir("/a"))

	err := v.Mkdir("/a")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EEXIST)
}

func TestMkdirMissingParentFails(t *testing.T) {
	v := newVolume(t)
	err := v.Mkdir("/missing/a")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ENOENT)
}

func TestCopyInSizeAndBlockList(t *testing.T) {
	v := newVolume(t)
	buf := make([]byte, 1500)
	for i := range buf {
		buf[i] = byte(i)
	}

	require.NoError(t, v.CopyIn(buf, "/hello"))

	_, links, size, fileType, err := v.Stat("/hello")
	require.NoError(t, err)
	assert.EqualValues(t, 1500, size)
	assert.Equal(t, uint16(1), links)
	assert.Equal(t, uint8(ondisk.FtRegFile), fileType)

	blocks, err := v.BlockList("/hello")
	require.NoError(t, err)
	assert.Len(t, blocks, 2, "1500 bytes needs two 1 KiB blocks")
	assert.NotEqual(t, blocks[0], blocks[1])

	readBack, err := v.ReadFile("/hello")
	require.NoError(t, err)
	assert.Equal(t, buf, readBack, "round-tripped data must match exactly")
}

func TestHardLink(t *testing.T) {
	v := newVolume(t)
	require.NoError(t, v.CopyIn([]byte("data"), "/hello"))
	require.NoError(t, v.Link("/hello", "/hi"))

	helloInode, helloLinks, _, _, err := v.Stat("/hello")
	require.NoError(t, err)
	hiInode, hiLinks, _, _, err := v.Stat("/hi")
	require.NoError(t, err)

	assert.Equal(t, helloInode, hiInode)
	assert.Equal(t, uint16(2), helloLinks)
	assert.Equal(t, uint16(2), hiLinks)
}

func TestHardLinkOnDirectoryFails(t *testing.T) {
	v := newVolume(t)
	require.NoError(t, v.Mkdir("/a"))
	err := v.Link("/a", "/b")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EISDIR)
}

func TestLinkSymbolic(t *testing.T) {
	v := newVolume(t)
	require.NoError(t, v.CopyIn([]byte("data"), "/hello"))
	require.NoError(t, v.LinkSymbolic("/hello", "/sym"))

	_, _, size, fileType, err := v.Stat("/sym")
	require.NoError(t, err)
	assert.EqualValues(t, 7, size)
	assert.Equal(t, uint8(ondisk.FtSymlink), fileType)

	target, err := v.ReadFile("/sym")
	require.NoError(t, err)
	assert.Equal(t, []byte("/hello\x00"), target)
}

func TestRemoveOnDirectoryFails(t *testing.T) {
	v := newVolume(t)
	require.NoError(t, v.Mkdir("/a"))
	err := v.Remove("/a")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EISDIR)
}

func TestRemoveThenRestoreRoundTrip(t *testing.T) {
	v := newVolume(t)
	buf := []byte("hello world")
	require.NoError(t, v.CopyIn(buf, "/hello"))

	require.NoError(t, v.Remove("/hello"))
	_, _, _, _, err := v.Stat("/hello")
	assert.ErrorIs(t, err, syscall.ENOENT, "removed file must not resolve")

	require.NoError(t, v.Restore("/hello"))
	_, links, size, _, err := v.Stat("/hello")
	require.NoError(t, err)
	assert.EqualValues(t, len(buf), size)
	assert.Equal(t, uint16(1), links)

	readBack, err := v.ReadFile("/hello")
	require.NoError(t, err)
	assert.Equal(t, buf, readBack)
}

// TestRemoveTwoHardLinksThenRestoreFirst exercises the rm/rm/restore sequence
// for a hard-linked file: dropping /hi only decrements the link count (the
// inode stays live, dtime 0), and it's the second rm, dropping the count to
// zero, that actually frees /hello's inode and stamps its dtime. Restoring
// /hello afterward recovers the original data.
//
// A second restore of /hi is deliberately NOT attempted here: by the time it
// would run, /hello's restore has already zeroed the shared inode's dtime,
// and restoreDirent's gap-walk (faithfully reproducing the original's
// `curr_gap_inode->i_dtime == 0` check) treats a live dtime as "this slot
// may have been reused" and refuses to recover it — see
// TestRestoreSecondHardLinkAfterFirstIsUnrecoverable.
func TestRemoveTwoHardLinksThenRestoreFirst(t *testing.T) {
	v := newVolume(t)
	buf := []byte("hello world")
	require.NoError(t, v.CopyIn(buf, "/hello"))
	require.NoError(t, v.Link("/hello", "/hi"))

	require.NoError(t, v.Remove("/hi"))
	require.NoError(t, v.Remove("/hello"))
	require.NoError(t, v.Restore("/hello"))

	readBack, err := v.ReadFile("/hello")
	require.NoError(t, err)
	assert.Equal(t, buf, readBack)
}

// TestRestoreSecondHardLinkAfterFirstIsUnrecoverable documents a sharp edge
// in the restore algorithm: once one hard link to a freed inode has been
// restored, the inode is live again (dtime back to 0), and the gap-walk has
// no way to tell "this is the same file, restored a moment ago" apart from
// "this slot was reused by an unrelated new file" (spec.md §4.3's own
// reasoning for the check). This implementation follows the original
// source's literal dtime check (see DESIGN.md's Open Question log) rather
// than spec.md §8's end-to-end scenario 5, which asserts both restores
// succeed — that claim does not hold against the original C this spec was
// distilled from.
func TestRestoreSecondHardLinkAfterFirstIsUnrecoverable(t *testing.T) {
	v := newVolume(t)
	require.NoError(t, v.CopyIn([]byte("hello world"), "/hello"))
	require.NoError(t, v.Link("/hello", "/hi"))

	require.NoError(t, v.Remove("/hi"))
	require.NoError(t, v.Remove("/hello"))
	require.NoError(t, v.Restore("/hello"))

	err := v.Restore("/hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ENOENT)
}

func TestRestoreAfterSlotReuseIsUnrecoverable(t *testing.T) {
	v := newVolume(t)
	require.NoError(t, v.CopyIn([]byte("hello world"), "/hello"))
	require.NoError(t, v.Remove("/hello"))

	// Consume the freed inode with an unrelated allocation.
	require.NoError(t, v.CopyIn([]byte("x"), "/other"))

	err := v.Restore("/hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ENOENT)
}

// TestCopyInIndirectBlockRoundTrip exercises the singly-indirect block path
// (spec.md §4.2): a file larger than the 12 direct blocks must spill its
// remaining block pointers into the indirect block, and reading it back must
// still reproduce the original bytes exactly.
func TestCopyInIndirectBlockRoundTrip(t *testing.T) {
	v := newVolume(t)

	buf := make([]byte, 20*ondisk.BlockSize)
	for i := range buf {
		buf[i] = byte(i % 251)
	}

	require.NoError(t, v.CopyIn(buf, "/big"))

	_, _, size, fileType, err := v.Stat("/big")
	require.NoError(t, err)
	assert.EqualValues(t, len(buf), size)
	assert.Equal(t, uint8(ondisk.FtRegFile), fileType)

	blocks, err := v.BlockList("/big")
	require.NoError(t, err)
	assert.Len(t, blocks, 20, "file needs 20 data blocks, past the 12 direct pointers")

	readBack, err := v.ReadFile("/big")
	require.NoError(t, err)
	assert.Equal(t, buf, readBack, "round-tripped data through the indirect block must match exactly")

	require.NoError(t, v.Remove("/big"))
	require.NoError(t, v.Restore("/big"))
	readBack2, err := v.ReadFile("/big")
	require.NoError(t, err)
	assert.Equal(t, buf, readBack2, "restore must recover data reached through the indirect block")
}

func TestAppendOverflowsIntoNewDirectoryBlock(t *testing.T) {
	v := newVolume(t)

	before, err := v.BlockList("/")
	require.NoError(t, err)
	require.Len(t, before, 1)

	// The synthetic image has only 21 free inodes, so each name is padded to
	// 59 bytes (a 68-byte entry): the 15th mkdir no longer fits in the root
	// block's remaining 980 bytes.
	grew := false
	for i := 0; i < 200 && !grew; i++ {
		require.NoError(t, v.Mkdir(shortName(i)+strings.Repeat("x", 56)))
		blocks, err := v.BlockList("/")
		require.NoError(t, err)
		if len(blocks) > 1 {
			grew = true
		}
	}
	assert.True(t, grew, "root directory never overflowed into a second block")
}

func shortName(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "/" + string(letters[i%26]) + string(letters[(i/26)%26]) + string(rune('0'+i%10))
}
