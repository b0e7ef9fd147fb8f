// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"
	"image"
	"math/bits"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/stage/backend"
)

// TextureFormat represents the pixel format of a texture.
type TextureFormat uint8

const (
	// TextureFormatRGBA8 is the standard RGBA format with 8 bits per channel.
	TextureFormatRGBA8 TextureFormat = iota

	// TextureFormatBGRA8 is BGRA format, often used for surface presentation.
	TextureFormatBGRA8

	// TextureFormatR8 is single-channel 8-bit format, used for masks.
	TextureFormatR8
)

// String returns a string representation of the format.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8:
		return "RGBA8"
	case TextureFormatBGRA8:
		return "BGRA8"
	case TextureFormatR8:
		return "R8"
	default:
		return fmt.Sprintf("Unknown(%d)", f)
	}
}

// Valid reports whether f is a known format.
func (f TextureFormat) Valid() bool {
	return f <= TextureFormatR8
}

// BytesPerPixel returns the number of bytes per pixel for the format.
func (f TextureFormat) BytesPerPixel() int {
	if f == TextureFormatR8 {
		return 1
	}
	return 4
}

// ToWGPUFormat converts to the gputypes format.
func (f TextureFormat) ToWGPUFormat() gputypes.TextureFormat {
	switch f {
	case TextureFormatBGRA8:
		return gputypes.TextureFormatBGRA8Unorm
	case TextureFormatR8:
		return gputypes.TextureFormatR8Unorm
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// SamplerConfig is stored with a texture for the renderer that binds it.
type SamplerConfig struct {
	MagFilter    gputypes.FilterMode
	MinFilter    gputypes.FilterMode
	MipmapFilter gputypes.FilterMode
	AddressModeU gputypes.AddressMode
	AddressModeV gputypes.AddressMode
}

// DefaultSampler is linear filtering with clamped addressing.
func DefaultSampler() SamplerConfig {
	return SamplerConfig{
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
	}
}

// FullMipChain requests every mip level down to 1x1.
const FullMipChain = -1

// TextureData describes a texture to register. Pixels holds tightly packed
// rows of the base level. MipLevels of 0 or 1 uploads only the base level;
// larger values, or FullMipChain, generate the smaller levels by bilinear
// downsampling.
type TextureData struct {
	Label     string
	Width     int
	Height    int
	Format    TextureFormat
	Pixels    []byte
	MipLevels int
	Sampler   *SamplerConfig
}

// TexturePatch replaces a rectangle of the base level.
type TexturePatch struct {
	X, Y          int
	Width, Height int
	Pixels        []byte
}

// TextureInfo is a read-only view of a registered texture.
type TextureInfo struct {
	Handle    TextureHandle
	Label     string
	Width     int
	Height    int
	Format    TextureFormat
	MipLevels int
	Sampler   SamplerConfig
	Refs      int
	Resident  bool
	Dirty     bool
	SizeBytes uint64
}

type textureState struct {
	width, height int
	format        TextureFormat
	levels        int
	sampler       SamplerConfig
	mips          [][]byte // mips[0] is the base level

	binding backend.TextureBinding
}

func validateTexture(d TextureData) error {
	if !d.Format.Valid() {
		return fmt.Errorf("%w: unknown format %v", ErrInvalidImageData, d.Format)
	}
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImageData, d.Width, d.Height)
	}
	want := d.Width * d.Height * d.Format.BytesPerPixel()
	if len(d.Pixels) != want {
		return fmt.Errorf("%w: %d bytes for %dx%d %v, want %d",
			ErrInvalidImageData, len(d.Pixels), d.Width, d.Height, d.Format, want)
	}
	if d.MipLevels < FullMipChain {
		return fmt.Errorf("%w: mip levels %d", ErrInvalidImageData, d.MipLevels)
	}
	return nil
}

// maxMipLevels is the length of the full chain for a w x h image.
func maxMipLevels(w, h int) int {
	return bits.Len(uint(max(w, h)))
}

func newTextureState(d TextureData) *textureState {
	levels := d.MipLevels
	full := maxMipLevels(d.Width, d.Height)
	if levels == FullMipChain || levels > full {
		levels = full
	}
	if levels < 1 {
		levels = 1
	}
	s := &textureState{
		width:   d.Width,
		height:  d.Height,
		format:  d.Format,
		levels:  levels,
		sampler: DefaultSampler(),
	}
	if d.Sampler != nil {
		s.sampler = *d.Sampler
	}
	base := append([]byte(nil), d.Pixels...)
	s.mips = buildMips(base, d.Width, d.Height, d.Format, levels)
	return s
}

func (s *textureState) applyPatch(p TexturePatch) error {
	bpp := s.format.BytesPerPixel()
	if p.Width <= 0 || p.Height <= 0 || p.X < 0 || p.Y < 0 ||
		p.X+p.Width > s.width || p.Y+p.Height > s.height {
		return fmt.Errorf("%w: patch %dx%d at (%d,%d) outside %dx%d",
			ErrInvalidImageData, p.Width, p.Height, p.X, p.Y, s.width, s.height)
	}
	if len(p.Pixels) != p.Width*p.Height*bpp {
		return fmt.Errorf("%w: patch has %d bytes, want %d",
			ErrInvalidImageData, len(p.Pixels), p.Width*p.Height*bpp)
	}
	base := append([]byte(nil), s.mips[0]...)
	rowBytes := p.Width * bpp
	for row := 0; row < p.Height; row++ {
		dst := ((p.Y+row)*s.width + p.X) * bpp
		copy(base[dst:dst+rowBytes], p.Pixels[row*rowBytes:(row+1)*rowBytes])
	}
	s.mips = buildMips(base, s.width, s.height, s.format, s.levels)
	return nil
}

func (s *textureState) sizeBytes() uint64 {
	var n uint64
	for _, m := range s.mips {
		n += uint64(len(m))
	}
	return n
}

func mipSize(w, h, level int) (int, int) {
	return max(w>>level, 1), max(h>>level, 1)
}

// buildMips returns base followed by levels-1 bilinear reductions.
// Channels are filtered independently, so BGRA8 is treated as RGBA8.
func buildMips(base []byte, w, h int, f TextureFormat, levels int) [][]byte {
	mips := make([][]byte, 0, levels)
	mips = append(mips, base)
	if levels == 1 {
		return mips
	}
	src := wrapImage(base, w, h, f)
	for level := 1; level < levels; level++ {
		mw, mh := mipSize(w, h, level)
		dst := newImage(mw, mh, f)
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		mips = append(mips, pixelsOf(dst))
		src = dst
	}
	return mips
}

func wrapImage(pix []byte, w, h int, f TextureFormat) draw.Image {
	r := image.Rect(0, 0, w, h)
	if f == TextureFormatR8 {
		return &image.Gray{Pix: pix, Stride: w, Rect: r}
	}
	return &image.RGBA{Pix: pix, Stride: 4 * w, Rect: r}
}

func newImage(w, h int, f TextureFormat) draw.Image {
	r := image.Rect(0, 0, w, h)
	if f == TextureFormatR8 {
		return image.NewGray(r)
	}
	return image.NewRGBA(r)
}

func pixelsOf(img draw.Image) []byte {
	switch m := img.(type) {
	case *image.Gray:
		return m.Pix
	case *image.RGBA:
		return m.Pix
	}
	return nil
}
