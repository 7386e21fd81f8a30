//go:build unix

package mmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserve_CommitDecommit(t *testing.T) {
	page := PageSize()

	r, err := Reserve(4*page - 1)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 4*page, r.Size(), "size rounds up to the page")
	assert.Zero(t, r.Base()%uintptr(page))

	require.NoError(t, r.Commit(page, 2*page))
	data := r.Bytes()
	data[page] = 0xAB
	data[3*page-1] = 0xCD
	assert.Equal(t, byte(0xAB), data[page])

	require.NoError(t, r.Decommit(page, 2*page))
	require.NoError(t, r.Commit(page, page))
	assert.Equal(t, byte(0), data[page], "recommitted page is zero filled")
}

func TestReserve_Errors(t *testing.T) {
	_, err := Reserve(0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	r, err := Reserve(PageSize())
	require.NoError(t, err)

	assert.ErrorIs(t, r.Commit(0, 2*PageSize()), ErrOutOfBounds)
	assert.ErrorIs(t, r.Commit(-1, 1), ErrOutOfBounds)
	assert.NoError(t, r.Commit(0, 0), "empty range is a no-op")

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "close is idempotent")
	assert.Nil(t, r.Bytes())
	assert.ErrorIs(t, r.Commit(0, PageSize()), ErrClosed)
}
