package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	cases := []struct {
		in   string
		want ByteSize
	}{
		{"0", 0},
		{"1024", 1024},
		{"1024B", 1024},
		{"1K", 1000},
		{"2KB", 2000},
		{"100MB", 100 * MB},
		{"16GB", 16 * GB},
		{"1TB", TB},
		{"1Ki", KiB},
		{"100MiB", 100 * MiB},
		{"1gib", GiB},
		{"1GI", GiB},
		{"  1GB  ", GB},
		{"1 GB", GB},
		{"1.5Mi", ByteSize(1.5 * float64(MiB))},
		{"0.5GB", ByteSize(0.5 * float64(GB))},
	}
	for _, tc := range cases {
		got, err := ParseByteSize(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseByteSizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "GB", "abc", "1Xi", "-1GB", "-1.5MB"} {
		_, err := ParseByteSize(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("2GiB")))
	assert.Equal(t, 2*GiB, b)

	assert.Error(t, b.UnmarshalText([]byte("nope")))
}

func TestString(t *testing.T) {
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "2.00KiB", (2 * KiB).String())
	assert.Equal(t, "1.00GiB", GiB.String())
	assert.Equal(t, "1.50GiB", ByteSize(1.5*float64(GiB)).String())
}

func TestInt64(t *testing.T) {
	assert.Equal(t, int64(16_000_000_000), (16 * GB).Int64())
}
