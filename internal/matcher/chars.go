package matcher

import (
	"bytes"
	"unicode/utf8"
)

// suspiciousChars are shell and markup metacharacters.
const suspiciousChars = "<>;&|"

// FindChars returns every offset in content whose byte is one of chars.
// One to three ASCII bytes use the vectorized bytes routines; larger or
// non-ASCII sets fall back to a lookup table.
func FindChars(content, chars []byte) []int {
	if len(content) == 0 || len(chars) == 0 {
		return nil
	}

	switch {
	case len(chars) == 1:
		return findByte(content, chars[0])
	case len(chars) <= 3 && isASCII(chars):
		return findAny(content, string(chars))
	default:
		return findTable(content, chars)
	}
}

// HasSuspiciousContent reports whether content contains any of < > ; & |.
func HasSuspiciousContent(content []byte) bool {
	return bytes.IndexAny(content, suspiciousChars) >= 0
}

func findByte(content []byte, c byte) []int {
	var positions []int
	for off := 0; off < len(content); {
		i := bytes.IndexByte(content[off:], c)
		if i < 0 {
			break
		}
		positions = append(positions, off+i)
		off += i + 1
	}
	return positions
}

func findAny(content []byte, set string) []int {
	var positions []int
	for off := 0; off < len(content); {
		i := bytes.IndexAny(content[off:], set)
		if i < 0 {
			break
		}
		positions = append(positions, off+i)
		off += i + 1
	}
	return positions
}

func findTable(content, chars []byte) []int {
	var table [256]bool
	for _, c := range chars {
		table[c] = true
	}

	var positions []int
	for i, b := range content {
		if table[b] {
			positions = append(positions, i)
		}
	}
	return positions
}

func isASCII(chars []byte) bool {
	for _, c := range chars {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
