package frame

import (
	"strings"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/stretchr/testify/require"
)

func makeTestImage(width, height int) *cimg.Image {
	img := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := img.Pixels[y*img.Stride+x*3:]
			p[0] = uint8(x * 4)
			p[1] = uint8(y * 4)
			p[2] = 128
		}
	}
	return img
}

func TestDecode(t *testing.T) {
	src := FromImage(makeTestImage(64, 48))
	require.False(t, src.IsCorrupted())
	jpg, err := src.JPEG(90)
	require.NoError(t, err)
	require.NotEmpty(t, jpg)

	f := Decode(jpg)
	require.False(t, f.IsCorrupted())
	require.Equal(t, 64, f.Width())
	require.Equal(t, 48, f.Height())
	require.NotNil(t, f.Image())

	// Zero quality returns the original bytes
	orig, err := f.JPEG(0)
	require.NoError(t, err)
	require.Equal(t, jpg, orig)

	again, err := f.JPEG(70)
	require.NoError(t, err)
	require.False(t, Decode(again).IsCorrupted())
}

func TestCorrupted(t *testing.T) {
	for _, b := range [][]byte{nil, {}, []byte("not a jpeg"), {0xff, 0xd8, 0xff, 0xe0, 0, 0x10}} {
		f := Decode(b)
		require.True(t, f.IsCorrupted())
		require.Nil(t, f.Image())
		require.Equal(t, 0, f.Width())
		_, err := f.JPEG(0)
		require.ErrorIs(t, err, ErrCorrupted)
		_, err = f.Gray()
		require.ErrorIs(t, err, ErrCorrupted)
	}
}

func TestTime(t *testing.T) {
	before := time.Now()
	f := FromImage(makeTestImage(8, 8))
	require.False(t, f.Time().Before(before))
	iso := f.TimeISO()
	require.True(t, strings.HasSuffix(iso, "Z"))
	parsed, err := time.Parse("2006-01-02T15:04:05.000000Z", iso)
	require.NoError(t, err)
	require.WithinDuration(t, f.Time(), parsed, time.Millisecond)
}

func TestGray(t *testing.T) {
	img := cimg.NewImage(2, 1, cimg.PixelFormatRGB)
	copy(img.Pixels, []byte{255, 255, 255, 0, 0, 0})
	g, err := FromImage(img).Gray()
	require.NoError(t, err)
	require.Equal(t, 2, g.Bounds().Dx())
	require.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
	require.Equal(t, uint8(0), g.GrayAt(1, 0).Y)
}
