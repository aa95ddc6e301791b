// Package pdftest builds small scanned-style PDFs and text images for tests.
package pdftest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Page describes one page of a generated PDF. Width and Height are in points.
// JPEG is embedded as a DCTDecode image XObject drawn over the whole page; a
// nil JPEG produces a page without raster content. Text is drawn in Helvetica
// as a real text layer.
type Page struct {
	Width, Height float64
	ImageWidth    int
	ImageHeight   int
	JPEG          []byte
	Text          string
}

// TextImage renders text in black on a white grayscale canvas.
func TextImage(text string, width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, height/2),
	}
	d.DrawString(text)
	return img
}

// JPEG encodes img as a baseline JPEG.
func JPEG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNG encodes img as PNG.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// ScannedPage returns a 2x1 inch page holding a 100 DPI scan of text.
func ScannedPage(text string) Page {
	img := TextImage(text, 200, 100)
	return Page{Width: 144, Height: 72, ImageWidth: 200, ImageHeight: 100, JPEG: JPEG(img)}
}

// CorruptPage returns a page whose image stream is not a decodable JPEG.
func CorruptPage() Page {
	return Page{Width: 144, Height: 72, ImageWidth: 200, ImageHeight: 100, JPEG: []byte("this is not a jpeg stream")}
}

// BlankPage returns a page with no raster content.
func BlankPage() Page {
	return Page{Width: 144, Height: 72}
}

// DigitalPage returns a page whose only content is text.
func DigitalPage(text string) Page {
	return Page{Width: 612, Height: 792, Text: text}
}

// Scanned builds an n-page PDF where page i shows "Page i".
func Scanned(n int) []byte {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = ScannedPage(fmt.Sprintf("Page %d", i))
	}
	return Build(pages...)
}

// Build assembles a PDF with a classic cross-reference table.
func Build(pages ...Page) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	objCount := 3 + 3*len(pages)
	offsets := make([]int, objCount+1)
	writeObj := func(num int, body []byte) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", num)
		buf.Write(body)
		buf.WriteString("\nendobj\n")
	}
	stream := func(dict string, data []byte) []byte {
		var b bytes.Buffer
		fmt.Fprintf(&b, "<< %s /Length %d >>\nstream\n", dict, len(data))
		b.Write(data)
		b.WriteString("\nendstream")
		return b.Bytes()
	}

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+3*i)
	}

	writeObj(1, []byte("<< /Type /Catalog /Pages 2 0 R >>"))
	writeObj(2, []byte(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))))
	writeObj(3, []byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"))

	for i, p := range pages {
		pageNum, contentNum, imageNum := 4+3*i, 5+3*i, 6+3*i
		var resources []string
		var content bytes.Buffer
		if p.JPEG != nil {
			resources = append(resources, fmt.Sprintf("/XObject << /Im0 %d 0 R >>", imageNum))
			fmt.Fprintf(&content, "q %.2f 0 0 %.2f 0 0 cm /Im0 Do Q\n", p.Width, p.Height)
		}
		if p.Text != "" {
			resources = append(resources, "/Font << /F1 3 0 R >>")
			fmt.Fprintf(&content, "BT /F1 12 Tf 36 %.2f Td", p.Height-48)
			for j, line := range strings.Split(p.Text, "\n") {
				if j > 0 {
					content.WriteString(" 0 -14 Td")
				}
				fmt.Fprintf(&content, " (%s) Tj", escapeText(line))
			}
			content.WriteString(" ET\n")
		}
		writeObj(pageNum, []byte(fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f] /Resources << %s >> /Contents %d 0 R >>",
			p.Width, p.Height, strings.Join(resources, " "), contentNum)))
		writeObj(contentNum, stream("", content.Bytes()))
		if p.JPEG != nil {
			writeObj(imageNum, stream(fmt.Sprintf(
				"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /DCTDecode",
				p.ImageWidth, p.ImageHeight), p.JPEG))
		} else {
			writeObj(imageNum, []byte("null"))
		}
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", objCount+1)
	for i := 1; i <= objCount; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", objCount+1, xref)
	return buf.Bytes()
}

func escapeText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}

// PNGHeader returns the signature and header chunk of a grayscale PNG that
// declares width x height pixels. It is enough for image.DecodeConfig.
func PNGHeader(width, height int) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(height))
	ihdr[8] = 8 // bit depth; color type 0 (gray), default compression, filter and interlace
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}
