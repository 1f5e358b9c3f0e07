package frame

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/bmharper/cimg/v2"
)

var ErrCorrupted = errors.New("Frame is corrupted")

const DefaultQuality = 85

// Frame is a single decoded camera image, along with the moment it was captured.
// A frame whose bytes could not be decoded is "corrupted". Corrupted frames
// carry no image, and producers drop them before they reach a queue.
type Frame struct {
	at        time.Time
	jpeg      []byte      // Original encoded bytes, if the frame was decoded from a JPEG
	img       *cimg.Image // Always RGB
	corrupted bool
}

// Decode a JPEG image. Decoding failure produces a corrupted frame, not an error.
func Decode(jpeg []byte) *Frame {
	f := &Frame{
		at:   time.Now(),
		jpeg: jpeg,
	}
	img, err := cimg.Decompress(jpeg)
	if err != nil || img.Width == 0 || img.Height == 0 {
		f.corrupted = true
		f.jpeg = nil
		return f
	}
	f.img = img.ToRGB()
	return f
}

// FromImage wraps an image that is already decoded
func FromImage(img *cimg.Image) *Frame {
	return &Frame{
		at:  time.Now(),
		img: img.ToRGB(),
	}
}

func (f *Frame) IsCorrupted() bool {
	return f.corrupted
}

// Time returns the moment that the frame was created
func (f *Frame) Time() time.Time {
	return f.at
}

// TimeISO returns the creation time as UTC ISO-8601, eg "2024-03-01T10:20:30.123456Z"
func (f *Frame) TimeISO() string {
	return f.at.UTC().Format("2006-01-02T15:04:05.000000") + "Z"
}

func (f *Frame) Width() int {
	if f.img == nil {
		return 0
	}
	return f.img.Width
}

func (f *Frame) Height() int {
	if f.img == nil {
		return 0
	}
	return f.img.Height
}

// Image returns the RGB image, or nil if the frame is corrupted
func (f *Frame) Image() *cimg.Image {
	return f.img
}

// JPEG returns the frame encoded as a JPEG.
// If the frame was decoded from a JPEG, and quality is zero, the original bytes are returned.
func (f *Frame) JPEG(quality int) ([]byte, error) {
	if f.corrupted {
		return nil, ErrCorrupted
	}
	if quality == 0 {
		if f.jpeg != nil {
			return f.jpeg, nil
		}
		quality = DefaultQuality
	}
	b, err := cimg.Compress(f.img, cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
	if err != nil {
		return nil, fmt.Errorf("Failed to compress frame: %w", err)
	}
	return b, nil
}

// Gray returns a single channel luminance copy of the frame
func (f *Frame) Gray() (*image.Gray, error) {
	if f.corrupted {
		return nil, ErrCorrupted
	}
	src := f.img
	nchan := src.NChan()
	dst := image.NewGray(image.Rect(0, 0, src.Width, src.Height))
	for y := 0; y < src.Height; y++ {
		srow := src.Pixels[y*src.Stride:]
		drow := dst.Pix[y*dst.Stride:]
		for x := 0; x < src.Width; x++ {
			p := srow[x*nchan:]
			// BT.601 luma, in 16.16 fixed point
			drow[x] = uint8((19595*uint32(p[0]) + 38470*uint32(p[1]) + 7471*uint32(p[2]) + 1<<15) >> 16)
		}
	}
	return dst, nil
}
