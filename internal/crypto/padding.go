package crypto

// addPadding appends zero bytes so the buffer length becomes the smallest
// multiple of blockLen that is >= the input length. A zero-length buffer is
// returned unchanged; it is the encrypt call site's job to skip empty input
// rather than pad it to a full block.
func addPadding(buf []byte, blockLen int) []byte {
	pad := (blockLen - len(buf)%blockLen) % blockLen
	for i := 0; i < pad; i++ {
		buf = append(buf, 0x00)
	}
	return buf
}

// removePadding strips the zero-byte padding after decryption. It locates
// the first zero byte and from that position on compacts the buffer,
// dropping every zero byte while keeping any non-zero bytes that follow.
//
// This is only correct for plaintext with no embedded zero bytes before the
// true padding run. Log-line text satisfies this in practice; binary
// payloads with interior zeros are silently corrupted. The algorithm is kept
// bit-compatible with existing encrypted files, so it must not be replaced
// by a length-prefixed scheme without a compatibility break.
func removePadding(buf []byte) []byte {
	first := -1
	for i, b := range buf {
		if b == 0x00 {
			first = i
			break
		}
	}
	if first == -1 {
		return buf
	}
	dst := first
	for src := first; src < len(buf); src++ {
		if buf[src] != 0x00 {
			buf[dst] = buf[src]
			dst++
		}
	}
	return buf[:dst]
}
