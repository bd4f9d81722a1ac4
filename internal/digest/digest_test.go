package digest_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"hoard-go/internal/digest"
)

func TestSum_EmptyInput(t *testing.T) {
	cases := []struct {
		alg  digest.Algorithm
		want string
	}{
		{digest.SHA1, "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
		{digest.SHA2_256, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{digest.SHA2_512, "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e"},
		{digest.SHA3_256, "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"},
		{digest.BLAKE3, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
	}
	for _, tc := range cases {
		t.Run(string(tc.alg), func(t *testing.T) {
			sums, n, err := digest.Sum(context.Background(), bytes.NewReader(nil), []digest.Algorithm{tc.alg})
			require.NoError(t, err)
			require.Zero(t, n)
			require.Equal(t, tc.want, sums.Hex(tc.alg))
		})
	}
}

func TestSum_KnownValue(t *testing.T) {
	sums, n, err := digest.Sum(context.Background(), strings.NewReader("abc"), digest.DefaultAlgorithms)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sums.Hex(digest.SHA2_256))
	require.Len(t, sums, len(digest.DefaultAlgorithms))
	for _, alg := range digest.DefaultAlgorithms {
		require.Len(t, sums[alg], alg.Size(), alg)
	}
}

func TestSum_Deterministic(t *testing.T) {
	// Larger than one chunk so the multi-read path is exercised.
	data := bytes.Repeat([]byte("hoard"), digest.ChunkSize)
	algs := digest.All()

	first, _, err := digest.Sum(context.Background(), bytes.NewReader(data), algs)
	require.NoError(t, err)
	second, n, err := digest.Sum(context.Background(), iotestHalfReader(data), algs)
	require.NoError(t, err)
	require.EqualValues(t, len(data), n)
	require.Equal(t, first, second)
}

func TestSum_InvalidAlgorithms(t *testing.T) {
	_, _, err := digest.Sum(context.Background(), strings.NewReader("x"), nil)
	require.True(t, digest.ErrNoAlgorithms.Has(err), err)

	_, _, err = digest.Sum(context.Background(), strings.NewReader("x"), []digest.Algorithm{"md5"})
	require.True(t, digest.ErrUnknownAlgorithm.Has(err), err)

	_, _, err = digest.Sum(context.Background(), strings.NewReader("x"), []digest.Algorithm{digest.SHA1, digest.SHA1})
	require.True(t, digest.ErrDuplicateAlgorithm.Has(err), err)
}

func TestSum_ReadFailure(t *testing.T) {
	boom := errors.New("device went away")
	r := io.MultiReader(strings.NewReader("partial"), &failingReader{err: boom})

	_, _, err := digest.Sum(context.Background(), r, digest.DefaultAlgorithms)
	require.Error(t, err)
	require.True(t, digest.ErrIO.Has(err), err)
	require.ErrorIs(t, err, boom)
}

func TestSum_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := digest.Sum(ctx, strings.NewReader("data"), digest.DefaultAlgorithms)
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseAlgorithms(t *testing.T) {
	algs, err := digest.ParseAlgorithms([]string{"SHA2-256", " sha3-512 "})
	require.NoError(t, err)
	require.Equal(t, []digest.Algorithm{digest.SHA2_256, digest.SHA3_512}, algs)

	_, err = digest.ParseAlgorithms([]string{"sha2-256", "sha2-256"})
	require.True(t, digest.ErrDuplicateAlgorithm.Has(err), err)

	_, err = digest.ParseAlgorithms([]string{"crc32"})
	require.True(t, digest.ErrUnknownAlgorithm.Has(err))
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

// iotestHalfReader returns a reader that yields at most half the requested bytes per Read.
func iotestHalfReader(data []byte) io.Reader {
	return &halfReader{r: bytes.NewReader(data)}
}

type halfReader struct{ r io.Reader }

func (h *halfReader) Read(p []byte) (int, error) {
	return h.r.Read(p[0 : (len(p)+1)/2])
}
