package frame

import (
	"encoding/hex"
	"hash/crc32"

	"github.com/zeebo/blake3"
)

// crcTable is the IEEE CRC-32 table.
var crcTable = crc32.MakeTable(crc32.IEEE)

// ComputeCRC computes CRC-32 IEEE of the given bytes.
func ComputeCRC(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// Digest computes the BLAKE3-256 digest of the given bytes.
func Digest(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// DigestHex converts a digest to lowercase hex.
func DigestHex(d [32]byte) string {
	return hex.EncodeToString(d[:])
}
