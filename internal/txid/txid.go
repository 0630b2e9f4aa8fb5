package txid

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
)

// Generate derives a transaction identifier from the transfer inputs.
//
// The id is the hex SHA-256 of len(from) || from || len(to) || to || amount ||
// timestamp, every integer encoded as 8-byte big endian. The length prefixes
// keep ("ab", "c") and ("a", "bc") apart. Two transfers with identical inputs
// (same millisecond) still produce the same id.
func Generate(from, to string, amount, timestamp uint64) string {
	h := sha256.New()
	writeString(h, from)
	writeString(h, to)
	writeUint64(h, amount)
	writeUint64(h, timestamp)
	return hex.EncodeToString(h.Sum(nil))
}

func writeString(w io.Writer, s string) {
	writeUint64(w, uint64(len(s)))
	w.Write([]byte(s))
}

func writeUint64(w io.Writer, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	w.Write(buf[:])
}
