package ondisk

// Superblock is the on-disk superblock, used fields only (spec.md §3).
// The struct is exactly 1024 bytes (one block) so it can be read and written
// with a single encoding/binary call at a fixed block offset; everything
// after DefResgid is reserved/unused by this toolkit and round-trips as
// opaque padding.
type Superblock struct {
	InodesCount         uint32
	BlocksCount         uint32
	ReservedBlocksCount uint32
	FreeBlocksCount     uint32
	FreeInodesCount     uint32
	FirstDataBlock      uint32
	LogBlockSize        uint32
	LogFragSize         int32
	BlocksPerGroup      uint32
	FragsPerGroup       uint32
	InodesPerGroup      uint32
	Mtime               uint32
	Wtime               uint32
	MntCount            uint16
	MaxMntCount         int16
	Magic               uint16
	State               uint16
	Errors              uint16
	MinorRevLevel       uint16
	LastCheck           uint32
	CheckInterval       uint32
	CreatorOS           uint32
	RevLevel            uint32
	DefResuid           uint16
	DefResgid           uint16
	_                   [940]byte // reserved: UUID, volume name, etc. — unused by this toolkit
}

// GroupDescriptor is the (single) block group descriptor, 32 bytes.
type GroupDescriptor struct {
	BlockBitmapBlock uint32
	InodeBitmapBlock uint32
	InodeTableBlock  uint32
	FreeBlocksCount  uint16
	FreeInodesCount  uint16
	UsedDirsCount    uint16
	_                uint16
	_                [12]byte
}

// RawInode is the 128-byte on-disk inode record.
type RawInode struct {
	Mode       uint16
	Uid        uint16
	Size       uint32
	Atime      uint32
	Ctime      uint32
	Mtime      uint32
	Dtime      uint32
	Gid        uint16
	LinksCount uint16
	Blocks     uint32 // 512-byte sector count, not block count
	Flags      uint32
	_          uint32 // osd1
	Block      [15]uint32
	Generation uint32
	FileACL    uint32
	DirACL     uint32
	_          uint32    // i_faddr
	_          [12]byte  // osd2
}

// IsDir reports whether the inode's mode bits mark it as a directory.
func (in *RawInode) IsDir() bool { return in.Mode&ModeFmt == ModeDir }

// IsRegular reports whether the inode's mode bits mark it as a regular file.
func (in *RawInode) IsRegular() bool { return in.Mode&ModeFmt == ModeRegular }

// IsSymlink reports whether the inode's mode bits mark it as a symlink.
func (in *RawInode) IsSymlink() bool { return in.Mode&ModeFmt == ModeSymlink }

// FileType derives the directory-entry file-type byte matching this inode's
// mode, or FtUnknown if the mode is none of regular/dir/symlink.
func (in *RawInode) FileType() uint8 {
	switch {
	case in.IsDir():
		return FtDir
	case in.IsSymlink():
		return FtSymlink
	case in.IsRegular():
		return FtRegFile
	default:
		return FtUnknown
	}
}

// DirentHeader is the fixed-size prefix of a directory entry; the name bytes
// immediately follow it in the data block and are not part of this struct.
type DirentHeader struct {
	Inode    uint32
	RecLen   uint16
	NameLen  uint8
	FileType uint8
}
