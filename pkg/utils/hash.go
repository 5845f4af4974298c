package utils

import (
	"crypto/md5"
	"encoding/hex"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return hex.EncodeToString(hash[:])
}

// ShortHash returns the first n hex characters of the md5 of input.
func ShortHash(input string, n int) string {
	h := HashString(input)
	if n <= 0 || n >= len(h) {
		return h
	}
	return h[:n]
}
