package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", HashString("hello"))
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "5d41402abc4b", ShortHash("hello", 12))
	assert.Len(t, ShortHash("hello", 0), 32)
	assert.Len(t, ShortHash("hello", 99), 32)
}
