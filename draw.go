package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	svg "github.com/ajstarks/svgo"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// FOOTER_MIN_HEIGHT is the footer height at or below which no logo is drawn.
	FOOTER_MIN_HEIGHT = 5
	OFFLINE_CAPTION   = "offline"
)

var (
	PAPER_WHITE = color.RGBA{255, 255, 255, 255}
	PAPER_BLACK = color.RGBA{0, 0, 0, 255}
	PAPER_GREY  = color.RGBA{150, 150, 150, 255}
)

//---------------- Assets ----------------

// loadImage decodes an asset from disk. Raster formats go through
// image.Decode; SVG files are rasterized at their intrinsic size.
func loadImage(filePath string) (image.Image, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if strings.ToLower(filepath.Ext(filePath)) == ".svg" {
		return rasterizeSVG(data, 0, 0)
	}
	return decodeImage(data)
}

// rasterizeSVG renders SVG data onto a transparent canvas. A zero width or
// height falls back to the document's viewBox.
func rasterizeSVG(data []byte, w, h int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if w == 0 {
		w = int(icon.ViewBox.W)
	}
	if h == 0 {
		h = int(icon.ViewBox.H)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: svg %dx%d", ErrEmptyImage, w, h)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)
	return rgba, nil
}

//---------------- Slides ----------------

// SlideComposer holds what every slide shares: the logo and the canvas size.
type SlideComposer struct {
	Logo   image.Image
	Width  int
	Height int
}

func (c *SlideComposer) Compose(img image.Image) *image.RGBA {
	return composeSlide(img, c.Logo, c.Width, c.Height)
}

// composeSlide scales src to exactly width pixels wide and pastes it at the
// top of a white canvas. Whatever overflows the canvas is cropped. When the
// footer left below the image is taller than FOOTER_MIN_HEIGHT, the logo is
// scaled to the footer height and centered in it.
func composeSlide(src, logo image.Image, width, height int) *image.RGBA {
	canvas := blankFrame(width, height)

	sb := src.Bounds()
	scaledH := int(float64(sb.Dy()) * float64(width) / float64(sb.Dx()))
	xdraw.CatmullRom.Scale(canvas, image.Rect(0, 0, width, scaledH), src, sb, draw.Over, nil)

	footerY := min(scaledH, height)
	footerH := height - footerY
	if footerH <= FOOTER_MIN_HEIGHT || logo == nil {
		return canvas
	}

	lb := logo.Bounds()
	if lb.Dx() <= 0 || lb.Dy() <= 0 {
		return canvas
	}
	scale := float64(footerH) / float64(lb.Dy())
	lw := int(float64(lb.Dx()) * scale)
	lh := int(float64(lb.Dy()) * scale)
	x0 := (width - lw) / 2
	xdraw.CatmullRom.Scale(canvas, image.Rect(x0, footerY, x0+lw, footerY+lh), logo, lb, draw.Over, nil)
	return canvas
}

// prepareOfflineSlide fits src inside the canvas, centered, with nearest
// neighbour scaling so QR modules stay sharp.
func prepareOfflineSlide(src image.Image, width, height int, badge bool) *image.RGBA {
	canvas := blankFrame(width, height)

	sb := src.Bounds()
	if sb.Dx() > 0 && sb.Dy() > 0 {
		scale := math.Min(float64(width)/float64(sb.Dx()), float64(height)/float64(sb.Dy()))
		w := int(float64(sb.Dx()) * scale)
		h := int(float64(sb.Dy()) * scale)
		x0 := (width - w) / 2
		y0 := (height - h) / 2
		xdraw.NearestNeighbor.Scale(canvas, image.Rect(x0, y0, x0+w, y0+h), src, sb, draw.Over, nil)
	}

	if badge {
		drawOfflineBadge(canvas, OFFLINE_CAPTION)
	}
	return canvas
}

//---------------- Offline badge ----------------

// noSignalSVG draws four empty signal bars struck through by a cross.
func noSignalSVG() []byte {
	const (
		numBars  = 4
		barW     = 8
		barSpace = 2
		iconW    = numBars*barW + (numBars-1)*barSpace
		iconH    = 26
	)
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Startview(iconW, iconH, 0, 0, iconW, iconH)
	fill := fmt.Sprintf("fill:#%02X%02X%02X", PAPER_GREY.R, PAPER_GREY.G, PAPER_GREY.B)
	for i := 0; i < numBars; i++ {
		barH := iconH / numBars * (i + 1)
		canvas.Roundrect(i*(barW+barSpace), iconH-barH, barW, barH, 2, 2, fill)
	}
	canvas.Line(2, 2, iconW-2, iconH-2, "stroke:black;stroke-width:3")
	canvas.Line(iconW-2, 2, 2, iconH-2, "stroke:black;stroke-width:3")
	canvas.End()
	return buf.Bytes()
}

// drawOfflineBadge puts a small "no signal" plate in the bottom-right
// corner. Frames too small to hold it are left alone.
func drawOfflineBadge(frame *image.RGBA, caption string) {
	b := frame.Bounds()
	face := basicfont.Face7x13
	textH := face.Metrics().Height.Ceil()
	textW := font.MeasureString(face, caption).Round()

	const pad = 3
	iconH := max(b.Dy()/8, textH)
	iconW := iconH * 3 / 2
	plateW := iconW + textW + 3*pad
	plateH := iconH + 2*pad
	x0 := b.Max.X - plateW - pad
	y0 := b.Max.Y - plateH - pad
	if x0 < b.Min.X || y0 < b.Min.Y {
		return
	}

	gc := draw2dimg.NewGraphicContext(frame)
	gc.SetFillColor(PAPER_WHITE)
	gc.SetStrokeColor(PAPER_BLACK)
	gc.SetLineWidth(1)
	drawRoundedRect(gc, float64(x0), float64(y0), float64(plateW), float64(plateH), pad)
	gc.FillStroke()

	if icon, err := rasterizeSVG(noSignalSVG(), iconW, iconH); err == nil {
		at := image.Pt(x0+pad, y0+pad)
		draw.Draw(frame, icon.Bounds().Add(at), icon, image.Point{}, draw.Over)
	}
	drawText(frame, caption, x0+2*pad+iconW, y0+(plateH-textH)/2, face, PAPER_BLACK)
}

// drawText draws text with its top-left corner at (posX, posY).
func drawText(img *image.RGBA, text string, posX, posY int, face font.Face, clr color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: face,
		Dot:  fixed.P(posX, posY+face.Metrics().Ascent.Round()),
	}
	d.DrawString(text)
}

func drawRoundedRect(gc *draw2dimg.GraphicContext, x, y, w, h, r float64) {
	gc.MoveTo(x+r, y)
	gc.LineTo(x+w-r, y)
	gc.ArcTo(x+w-r, y+r, r, r, -math.Pi/2, math.Pi/2)
	gc.LineTo(x+w, y+h-r)
	gc.ArcTo(x+w-r, y+h-r, r, r, 0, math.Pi/2)
	gc.LineTo(x+r, y+h)
	gc.ArcTo(x+r, y+h-r, r, r, math.Pi/2, math.Pi/2)
	gc.LineTo(x, y+r)
	gc.ArcTo(x+r, y+r, r, r, math.Pi, math.Pi/2)
	gc.Close()
}

//---------------- Encoding ----------------

func encodeFramePNG(frame image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func saveFrameToPng(frame image.Image, filename string) error {
	data, err := encodeFramePNG(frame)
	if err != nil {
		return err
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}
