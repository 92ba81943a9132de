package utils

const hexDigits = "0123456789ABCDEF"

// Hex2 formats a byte as two uppercase hex digits (e.g. "0A").
func Hex2(v byte) string {
	return string([]byte{hexDigits[v>>4], hexDigits[v&0x0F]})
}

// BytesToHex converts a byte slice to an uppercase hexadecimal string.
// Used in bus debug logs without pulling fmt into every log call.
func BytesToHex(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, x := range b {
		out = append(out, hexDigits[x>>4], hexDigits[x&0x0F])
	}
	return string(out)
}
