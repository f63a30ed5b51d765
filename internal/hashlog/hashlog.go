// Package hashlog implements the differ's append-only binary record file:
// a durable sequence of (path, hash64) entries used both as the prior-run
// input database and as the resumable output database.
//
// Record layout on disk:
//
//	u8  head_len            fixed header size for this record
//	u64 hash                little-endian XXH64 of the file's contents
//	u64 path_len            little-endian byte length of the path
//	u8[path_len] path_bytes raw native path bytes (see package pathcodec)
//
// A legacy 32-bit-usize header (head_len == legacyHeadLen) is accepted on
// read for backward compatibility with databases written by a 32-bit host;
// every new record is written with the standardised 64-bit width.
package hashlog

import "discdiff/internal/pathcodec"

const (
	// headLen is the fixed header size written by this implementation:
	// 8 bytes of hash plus 8 bytes of path length.
	headLen = 16

	// legacyHeadLen is the header size a 32-bit host would have written
	// (8 bytes of hash plus a 4-byte path length). Supported read-only.
	legacyHeadLen = 12
)

// Entry is a single (path, hash) record.
type Entry struct {
	Path string
	Hash uint64
}

func encodeEntry(e Entry) ([]byte, error) {
	pathBytes, err := pathcodec.ToBytes(e.Path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 1+headLen+len(pathBytes))
	buf[0] = headLen
	putLE64(buf[1:9], e.Hash)
	putLE64(buf[9:17], uint64(len(pathBytes)))
	copy(buf[17:], pathBytes)
	return buf, nil
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getLE64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func getLE32(b []byte) uint64 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return uint64(v)
}
