package archive

import (
	"bytes"
	"path"
	"strings"
)

// Compression is the outer decompression stage, if any.
type Compression uint8

const (
	Uncompressed Compression = iota
	Gzip
	XZ
	Zstd
	LZ4
	Bzip2
)

func (c Compression) String() string {
	switch c {
	case Uncompressed:
		return "none"
	case Gzip:
		return "gzip"
	case XZ:
		return "xz"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	case Bzip2:
		return "bzip2"
	default:
		return "unknown"
	}
}

// Container is the entry-listing format under the compression stage.
type Container uint8

const (
	// Opaque means no recognized container; the file has no entries.
	Opaque Container = iota
	Tar
	Zip
	// Undetermined means the compressed stream must be decompressed and
	// sniffed again to decide between Tar and Opaque.
	Undetermined
)

func (c Container) String() string {
	switch c {
	case Opaque:
		return "opaque"
	case Tar:
		return "tar"
	case Zip:
		return "zip"
	case Undetermined:
		return "undetermined"
	default:
		return "unknown"
	}
}

// Format is a pipeline of at most one decompression stage feeding one
// container reader.
type Format struct {
	Compression Compression
	Container   Container
}

// IsOpaque reports whether the format has no entries to list.
func (f Format) IsOpaque() bool {
	return f.Container == Opaque
}

func (f Format) String() string {
	if f.Compression == Uncompressed {
		return f.Container.String()
	}
	return f.Container.String() + "+" + f.Compression.String()
}

// SniffLen is the number of leading bytes Detect needs to see. The tar
// magic sits at offset 257.
const SniffLen = 512

const tarMagicOffset = 257

var extensions = []struct {
	suffix string
	format Format
}{
	{".tar.gz", Format{Gzip, Tar}},
	{".tgz", Format{Gzip, Tar}},
	{".tar.xz", Format{XZ, Tar}},
	{".txz", Format{XZ, Tar}},
	{".tar.zst", Format{Zstd, Tar}},
	{".tar.zstd", Format{Zstd, Tar}},
	{".tzst", Format{Zstd, Tar}},
	{".tar.lz4", Format{LZ4, Tar}},
	{".tar.bz2", Format{Bzip2, Tar}},
	{".tbz2", Format{Bzip2, Tar}},
	{".tbz", Format{Bzip2, Tar}},
	{".tar", Format{Uncompressed, Tar}},
	{".zip", Format{Uncompressed, Zip}},
	{".gz", Format{Gzip, Undetermined}},
	{".xz", Format{XZ, Undetermined}},
	{".zst", Format{Zstd, Undetermined}},
	{".zstd", Format{Zstd, Undetermined}},
	{".lz4", Format{LZ4, Undetermined}},
	{".bz2", Format{Bzip2, Undetermined}},
}

// DetectByName maps a file name's extension to a Format. ok is false when
// the name carries no known extension.
func DetectByName(name string) (f Format, ok bool) {
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	for _, ext := range extensions {
		if len(base) > len(ext.suffix) && strings.HasSuffix(base, ext.suffix) {
			return ext.format, true
		}
	}
	return Format{}, false
}

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicXZ    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4   = []byte{0x04, 0x22, 0x4d, 0x18}
	magicBzip2 = []byte("BZh")
	magicZip   = []byte("PK\x03\x04")
	magicZipE  = []byte("PK\x05\x06") // empty archive
	magicTar   = []byte("ustar")
)

// Sniff identifies a format from the leading bytes of a stream.
func Sniff(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, magicZip), bytes.HasPrefix(head, magicZipE):
		return Format{Uncompressed, Zip}
	case bytes.HasPrefix(head, magicGzip):
		return Format{Gzip, Undetermined}
	case bytes.HasPrefix(head, magicXZ):
		return Format{XZ, Undetermined}
	case bytes.HasPrefix(head, magicZstd):
		return Format{Zstd, Undetermined}
	case bytes.HasPrefix(head, magicLZ4):
		return Format{LZ4, Undetermined}
	case len(head) > 3 && bytes.HasPrefix(head, magicBzip2) && head[3] >= '1' && head[3] <= '9':
		return Format{Bzip2, Undetermined}
	case isTar(head):
		return Format{Uncompressed, Tar}
	default:
		return Format{}
	}
}

func isTar(head []byte) bool {
	return len(head) >= tarMagicOffset+len(magicTar) &&
		bytes.Equal(head[tarMagicOffset:tarMagicOffset+len(magicTar)], magicTar)
}

// Detect picks a format by extension first and falls back to sniffing head
// when the extension is absent or does not settle the container.
func Detect(name string, head []byte) Format {
	byName, ok := DetectByName(name)
	if ok && byName.Container != Undetermined {
		return byName
	}
	sniffed := Sniff(head)
	if ok {
		// ".gz" and friends: trust the content over the name when they disagree.
		if sniffed.Compression != Uncompressed {
			return sniffed
		}
		if sniffed.IsOpaque() {
			return Format{}
		}
	}
	return sniffed
}
