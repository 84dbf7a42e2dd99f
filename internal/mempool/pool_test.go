package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFloat32Length(t *testing.T) {
	for _, n := range []int{1, 100, 1024, 1025, 100_000} {
		buf := GetFloat32(n)
		assert.Len(t, buf, n)
		assert.GreaterOrEqual(t, cap(buf), n)
		PutFloat32(buf)
	}
}

func TestPoolReuse(t *testing.T) {
	buf := GetFloat32(2048)
	for i := range buf {
		buf[i] = 1
	}
	PutFloat32(buf)

	// A fresh buffer of the same class may be recycled; length must
	// still match the request.
	again := GetFloat32(2000)
	assert.Len(t, again, 2000)
	PutFloat32(again)
}

func TestPutNilIsSafe(t *testing.T) {
	assert.NotPanics(t, func() { PutFloat32(nil) })
}
