package identifier

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fromHexByte(b byte) ID {
	var id ID
	id[len(id)-1] = b
	return id
}

func TestDistanceCommutativeAndReflexive(t *testing.T) {
	a := Random()
	b := Random()
	assert.Equal(t, Distance(a, b), Distance(b, a))
	assert.Equal(t, big.NewInt(0), Distance(a, a))
}

func TestDistanceXorIdentity(t *testing.T) {
	a, b, c := Random(), Random(), Random()
	lhs := new(big.Int).Xor(Distance(a, b), Distance(b, c))
	assert.Equal(t, lhs, Distance(a, c))
}

func TestDistanceTable(t *testing.T) {
	a := fromHexByte(0x1b)
	_ = a
	var x, y ID
	x[29], x[30], x[31] = 0x1b, 0x8f, 0x10
	y[29], y[30], y[31] = 0x1b, 0x8f, 0x0f
	assert.Equal(t, big.NewInt(0x1f), Distance(x, y))

	var ones, zeros ID
	for i := range ones {
		ones[i] = 0xff
	}
	want := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), Bits), big.NewInt(1))
	assert.Equal(t, want, Distance(ones, zeros))
}

func TestBitExtraction(t *testing.T) {
	var id ID
	id[31] = 0x01
	assert.Equal(t, 1, Bit(id, 255))

	var allOnes ID
	for i := range allOnes {
		allOnes[i] = 0xff
	}
	assert.Equal(t, 1, Bit(allOnes, 0))

	assert.Equal(t, 0, Bit(id, 256))
	assert.Equal(t, 0, Bit(id, 1000))
}

func TestForKeyIsDeterministic(t *testing.T) {
	k := []byte("foo")
	assert.Equal(t, ForKey(k), ForKey(k))
	assert.NotEqual(t, ForKey(k), ForKey([]byte("bar")))
}

func TestRandomIsUnique(t *testing.T) {
	a := Random()
	b := Random()
	assert.NotEqual(t, a, b)
}

func TestCommonPrefixLen(t *testing.T) {
	var a, b ID
	a[0] = 0xff
	b[0] = 0xff
	assert.Equal(t, Bits, CommonPrefixLen(a, a))
	b[0] = 0x7f
	assert.Equal(t, 0, CommonPrefixLen(a, b))
}
