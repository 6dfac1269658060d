package wire

import "encoding/binary"

// Byte-swap primitives. All wire words are big-endian (XDR). Floats and
// doubles are assumed IEEE-754 and are swapped as raw 32-bit words, same
// as any other word — there is no architecture-conditional code here; Go
// gives us from/to-big-endian conversions for free via encoding/binary,
// which is the one thing spec.md's design notes ask a rewrite to do
// instead of byte-level conditional swapping.

func putWord(dst []byte, w uint32) {
	binary.BigEndian.PutUint32(dst, w)
}

func getWord(src []byte) uint32 {
	return binary.BigEndian.Uint32(src)
}
