// Package magic recognises "magic" digests: digests whose hexadecimal form
// reads as a number in scientific notation equal to zero. At most three
// leading zero bytes are allowed, so the form is ^0{1,7}e[0-9]+$.
package magic

import "encoding/hex"

// DigestSize is the length of the digests the search works on.
const DigestSize = 20

// MaxLeadingZeroBytes is the number of 0x00 bytes allowed before the byte
// holding the "e".
const MaxLeadingZeroBytes = 3

// IsDigitByte reports whether both nibbles of b are decimal digits.
func IsDigitByte(b byte) bool {
	return b&0x0f <= 9 && b>>4 <= 9
}

// IsEDigitByte reports whether b renders as "e0" through "e9".
func IsEDigitByte(b byte) bool {
	return b&0x0f <= 9 && b>>4 == 0x0e
}

// Match reports whether the hex rendering of d is a magic number.
//
// Bytes are inspected left to right and the scan stops at the first byte
// that cannot belong to a match. Byte 0 has to be 0x00 or 0x0e, which
// rejects all but 1 in 128 random digests after a single comparison.
func Match(d []byte) bool {
	i := 0
	for i < MaxLeadingZeroBytes && i < len(d) && d[i] == 0x00 {
		i++
	}
	if i == len(d) {
		return false
	}
	switch b := d[i]; {
	case b == 0x0e:
		// "0e" needs at least one digit after it.
		if i+1 == len(d) {
			return false
		}
	case i > 0 && IsEDigitByte(b):
		// "...0" "e5": the zero comes from the previous byte.
	default:
		return false
	}
	for i++; i < len(d); i++ {
		if !IsDigitByte(d[i]) {
			return false
		}
	}
	return true
}

// Hex renders d in lowercase hexadecimal.
func Hex(d []byte) string {
	return hex.EncodeToString(d)
}
