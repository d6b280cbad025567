package utils

const hexDigits = "0123456789ABCDEF"

// Hex4 formats a company identifier as "0x0969" for log attributes.
func Hex4(v uint16) string {
	return string([]byte{
		'0', 'x',
		hexDigits[(v>>12)&0xF],
		hexDigits[(v>>8)&0xF],
		hexDigits[(v>>4)&0xF],
		hexDigits[v&0xF],
	})
}

// BytesToHex renders a raw advertisement payload as upper-case hex.
func BytesToHex(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, x := range b {
		out = append(out, hexDigits[x>>4], hexDigits[x&0x0F])
	}
	return string(out)
}
