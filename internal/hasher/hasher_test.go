package hasher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/slog"
)

func TestBlockSizeFor(t *testing.T) {
	tests := []struct {
		fileSize int64
		want     int32
	}{
		{0, MinBlockSize},
		{5, MinBlockSize},
		{100 << 20, MinBlockSize},
		{1 << 30, 1 << 20}, // 1 GiB needs 1 MiB blocks to stay under the cap
		{1 << 40, MaxBlockSize},
	}
	for _, tt := range tests {
		if got := BlockSizeFor(tt.fileSize); got != tt.want {
			t.Errorf("BlockSizeFor(%d) = %d, want %d", tt.fileSize, got, tt.want)
		}
	}
}

func TestBlockSizeKeepsCountBounded(t *testing.T) {
	for _, size := range []int64{1 << 20, 1 << 28, 1 << 33, 1 << 38} {
		bs := int64(BlockSizeFor(size))
		if bs < MaxBlockSize && size/bs > maxBlocksPerFile {
			t.Errorf("file of %d bytes gets %d blocks of %d", size, size/bs, bs)
		}
	}
}

func TestHashBlocksOrderAndContent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := NewPool(ctx, 3, slog.Nop())

	data := bytes.Repeat([]byte{0xAB}, 1000)
	digests, err := pool.HashBlocks(ctx, data, 300)
	require.NoError(t, err)
	require.Len(t, digests, 4)

	require.Equal(t, [32]byte(digests[0].Hash), sha256.Sum256(data[:300]))
	require.Equal(t, [32]byte(digests[3].Hash), sha256.Sum256(data[900:]))
	require.Equal(t, int32(100), digests[3].Size)
}

func TestValidate(t *testing.T) {
	d := Sum([]byte("12345"))
	require.NoError(t, Validate([]byte("12345"), d.Hash))

	err := Validate([]byte("12346"), d.Hash)
	require.Error(t, err)
	require.Equal(t, errs.KindDigestMismatch, errs.KindOf(err))
}

func TestSubmitBalancesAcrossWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := NewPool(ctx, 4, slog.Nop())

	var replies []<-chan Digest
	for i := 0; i < 32; i++ {
		replies = append(replies, pool.Submit([]byte{byte(i)}))
	}
	for i, reply := range replies {
		d := <-reply
		require.Equal(t, [32]byte(d.Hash), sha256.Sum256([]byte{byte(i)}))
	}
}
