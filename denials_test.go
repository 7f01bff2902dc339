package hitledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenialCache_RemembersUpToSize(t *testing.T) {
	for _, size := range []int64{1, 10, 1000} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			d, err := newDenialCache(size)
			require.NoError(t, err)
			defer d.close()

			for i := int64(0); i < size; i++ {
				assert.True(t, d.first(fmt.Sprintf("client-%d", i), time.Hour))
				d.wait()
			}

			remembered := 0
			for i := int64(0); i < size; i++ {
				if !d.first(fmt.Sprintf("client-%d", i), time.Hour) {
					remembered++
				}
			}
			assert.Equal(t, int(size), remembered)
		})
	}
}

func TestDenialCache_Forget(t *testing.T) {
	d, err := newDenialCache(10)
	require.NoError(t, err)
	defer d.close()

	assert.True(t, d.first("client", time.Hour))
	d.wait()
	assert.False(t, d.first("client", time.Hour))

	d.forget("client")
	d.wait()
	assert.True(t, d.first("client", time.Hour))
}

func TestDenialCache_Disabled(t *testing.T) {
	d, err := newDenialCache(0)
	require.NoError(t, err)
	defer d.close()

	assert.True(t, d.first("client", time.Hour))
	assert.True(t, d.first("client", time.Hour))
	d.forget("client")
}
