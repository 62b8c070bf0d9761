package entity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferKeepsTail(t *testing.T) {
	b := NewRingBuffer(10)

	n, err := b.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", b.String())

	b.Write([]byte(" world and more"))
	assert.Equal(t, 10, len(b.String()))
	assert.True(t, strings.HasSuffix("hello world and more", b.String()))
}

func TestRingBufferLargeSingleWrite(t *testing.T) {
	b := NewRingBuffer(4)
	b.Write([]byte("abcdefgh"))
	assert.Equal(t, "efgh", b.String())
}

func TestRingBufferEmpty(t *testing.T) {
	b := NewRingBuffer(4)
	assert.Equal(t, "", b.String())
}
