package testsupport

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/HaozheZhao/cua-annotation-tool/internal/frames"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
	"github.com/HaozheZhao/cua-annotation-tool/internal/timeline"
)

// FakeOpener opens deterministic in-memory sources. Each frame is a solid
// colour derived from its frame index, so tests can tell frames apart.
type FakeOpener struct {
	Width    int
	Height   int
	Duration float64
	FPS      float64
	// OpenErr, when set, is returned by Open.
	OpenErr error
	// FailAt makes Seek fail with DecodeFailure for these frame indices.
	FailAt map[int]bool
	// BeforeSeek, when set, runs before each decode with the frame index.
	// Tests use it to hold or delay individual seeks.
	BeforeSeek func(index int)

	opens atomic.Int64
	seeks atomic.Int64

	mu      sync.Mutex
	sources []*FakeSource
}

// NewFakeOpener returns a 64x48, 60 second, 30 fps opener.
func NewFakeOpener() *FakeOpener {
	return &FakeOpener{Width: 64, Height: 48, Duration: 60, FPS: 30}
}

// Open implements frames.Opener.
func (o *FakeOpener) Open(_ context.Context, path string) (frames.Source, error) {
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	o.opens.Add(1)
	src := &FakeSource{opener: o, info: frames.VideoInfo{
		Path:     path,
		Duration: o.Duration,
		FPS:      o.FPS,
		Width:    o.Width,
		Height:   o.Height,
	}}
	o.mu.Lock()
	o.sources = append(o.sources, src)
	o.mu.Unlock()
	return src, nil
}

// Opens returns how many sources were opened.
func (o *FakeOpener) Opens() int { return int(o.opens.Load()) }

// Seeks returns how many frames were decoded across all sources.
func (o *FakeOpener) Seeks() int { return int(o.seeks.Load()) }

// ClosedSources returns how many opened sources were closed.
func (o *FakeOpener) ClosedSources() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, src := range o.sources {
		if src.closed.Load() {
			n++
		}
	}
	return n
}

// FakeSource is the Source returned by FakeOpener.
type FakeSource struct {
	opener *FakeOpener
	info   frames.VideoInfo
	closed atomic.Bool
}

// Info implements frames.Source.
func (s *FakeSource) Info() frames.VideoInfo { return s.info }

// Close implements frames.Source.
func (s *FakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

// Seek implements frames.Source.
func (s *FakeSource) Seek(ctx context.Context, offset timeline.Offset) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	index, _, ok := frames.ResolveFrame(s.info, offset)
	if !ok {
		return nil, fmt.Errorf("%w: offset %ss exceeds duration %.3fs", services.ErrSeekOutOfRange, offset, s.info.Duration)
	}
	if s.opener.BeforeSeek != nil {
		s.opener.BeforeSeek(index)
	}
	if s.opener.FailAt[index] {
		return nil, fmt.Errorf("%w: synthetic failure at frame %d", services.ErrDecodeFailure, index)
	}
	s.opener.seeks.Add(1)
	return FrameImage(s.info.Width, s.info.Height, index), nil
}

// FrameImage renders the deterministic image FakeSource returns for index.
func FrameImage(width, height, index int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	c := FrameColor(index)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// FrameColor is the solid colour of frame index.
func FrameColor(index int) color.NRGBA {
	return color.NRGBA{R: uint8(index), G: uint8(index >> 8), B: 0x40, A: 0xff}
}
