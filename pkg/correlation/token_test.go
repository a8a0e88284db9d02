package correlation_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/aretw0/weft/pkg/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_RoundTrip(t *testing.T) {
	ids := []int64{0, 1, -1, 255, 256, math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64}
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		ids = append(ids, int64(r.Uint64()))
	}

	for _, id := range ids {
		tok := correlation.EncodeToken(id)
		require.Len(t, tok, correlation.TokenSize)

		got, err := correlation.DecodeToken(tok)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestToken_BigEndianLayout(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 2}, correlation.EncodeToken(0x0102))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, correlation.EncodeToken(-1))
}

func TestToken_InvalidLength(t *testing.T) {
	_, err := correlation.DecodeToken([]byte{1, 2, 3})
	assert.Error(t, err)
}
