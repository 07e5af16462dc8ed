package ffmpegdecoder

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/user/videobridge/pkg/ports"
	"github.com/user/videobridge/pkg/surface"
)

// component is one colour channel of a plane as a standalone image.
func component(data []byte, w, h, bps, stride, index int) draw.Image {
	if bps == 1 {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			row := data[y*w*stride:]
			for x := 0; x < w; x++ {
				img.Pix[y*img.Stride+x] = row[x*stride+index]
			}
		}
		return img
	}
	// Raw samples are little-endian; image.Gray16 is big-endian.
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := data[y*w*stride*2:]
		for x := 0; x < w; x++ {
			s := (x*stride + index) * 2
			d := y*img.Stride + x*2
			img.Pix[d], img.Pix[d+1] = row[s+1], row[s]
		}
	}
	return img
}

// storeComponent writes img back as channel index of an interleaved plane.
func storeComponent(dst []byte, img draw.Image, bps, stride, index int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	switch img := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := dst[y*w*stride:]
			for x := 0; x < w; x++ {
				row[x*stride+index] = img.Pix[y*img.Stride+x]
			}
		}
	case *image.Gray16:
		for y := 0; y < h; y++ {
			row := dst[y*w*stride*2:]
			for x := 0; x < w; x++ {
				s := y*img.Stride + x*2
				d := (x*stride + index) * 2
				row[d], row[d+1] = img.Pix[s+1], img.Pix[s]
			}
		}
	}
}

// scaleComponent resamples one channel with bilinear filtering.
func scaleComponent(src []byte, sw, sh int, dst []byte, dw, dh, bps, stride, index int) {
	in := component(src, sw, sh, bps, stride, index)
	var out draw.Image
	if bps == 1 {
		out = image.NewGray(image.Rect(0, 0, dw, dh))
	} else {
		out = image.NewGray16(image.Rect(0, 0, dw, dh))
	}
	draw.BiLinear.Scale(out, out.Bounds(), in, in.Bounds(), draw.Src, nil)
	storeComponent(dst, out, bps, stride, index)
}

// resizedInfo returns the surface produced by scaling in to dim.
func resizedInfo(in surface.Info, dim ports.Dimension) surface.Info {
	w, h := dim.Width, dim.Height
	if in.Format.PlaneCount() == 2 {
		w, h = w&^1, h&^1
	}
	return surface.NewInfo(w, h, in.BitDepth, in.Format, surface.MemHostCopied)
}

// resize scales tightly packed planes of in into a packed surface of out.
func resize(planes [][]byte, in, out surface.Info) ([]byte, error) {
	if len(planes) != in.Format.PlaneCount() {
		return nil, fmt.Errorf("%w: %d planes for %s", ErrBadSurface, len(planes), in.Format)
	}
	bps := in.BytesPerPixel()
	dst := make([]byte, out.Size())

	scaleComponent(planes[0], in.Width, in.Height, dst, out.Width, out.Height, bps, 1, 0)
	chroma := dst[out.Pitch*out.Height:]

	switch in.Format {
	case surface.FormatNV12, surface.FormatP016:
		sw, sh := in.Width/2, in.ChromaHeight()
		dw, dh := out.Width/2, out.ChromaHeight()
		scaleComponent(planes[1], sw, sh, chroma, dw, dh, bps, 2, 0)
		scaleComponent(planes[1], sw, sh, chroma, dw, dh, bps, 2, 1)
	default:
		plane := out.Pitch * out.Height
		scaleComponent(planes[1], in.Width, in.Height, chroma[:plane], out.Width, out.Height, bps, 1, 0)
		scaleComponent(planes[2], in.Width, in.Height, chroma[plane:], out.Width, out.Height, bps, 1, 0)
	}
	return dst, nil
}

// ycbcr builds an 8-bit image over the planes of info. 16-bit samples keep
// their high byte.
func ycbcr(planes [][]byte, info surface.Info) (*image.YCbCr, error) {
	if len(planes) != info.Format.PlaneCount() {
		return nil, fmt.Errorf("%w: %d planes for %s", ErrBadSurface, len(planes), info.Format)
	}
	ratio := image.YCbCrSubsampleRatio444
	if info.Format.PlaneCount() == 2 {
		ratio = image.YCbCrSubsampleRatio420
	}
	img := image.NewYCbCr(image.Rect(0, 0, info.Width, info.Height), ratio)
	bps := info.BytesPerPixel()
	sample := func(b []byte, i int) byte { return b[i*bps+bps-1] }

	for y := 0; y < info.Height; y++ {
		for x := 0; x < info.Width; x++ {
			img.Y[y*img.YStride+x] = sample(planes[0], y*info.Width+x)
		}
	}

	cw, ch := img.CStride, info.ChromaHeight()
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			o := y*img.CStride + x
			if info.Format.PlaneCount() == 2 {
				// Interleaved UV: sample pairs across a luma-width row.
				i := y*info.Width + 2*x
				if (i+1)*bps > len(planes[1]) {
					continue
				}
				img.Cb[o] = sample(planes[1], i)
				img.Cr[o] = sample(planes[1], i+1)
				continue
			}
			i := y*info.Width + x
			img.Cb[o] = sample(planes[1], i)
			img.Cr[o] = sample(planes[2], i)
		}
	}
	return img, nil
}

// toRGB converts planes of info into packed pixels of format.
func toRGB(planes [][]byte, info surface.Info, format ports.RGBFormat) ([]byte, error) {
	src, err := ycbcr(planes, info)
	if err != nil {
		return nil, err
	}
	rgba := image.NewRGBA(src.Bounds())
	draw.Draw(rgba, rgba.Bounds(), src, image.Point{}, draw.Src)
	if format == ports.RGBA32 {
		return rgba.Pix, nil
	}

	out := make([]byte, info.Width*info.Height*3)
	for i, j := 0, 0; i < len(rgba.Pix); i, j = i+4, j+3 {
		r, g, b := rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2]
		if format == ports.BGR24 {
			r, b = b, r
		}
		out[j], out[j+1], out[j+2] = r, g, b
	}
	return out, nil
}
