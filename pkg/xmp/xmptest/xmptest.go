// Package xmptest builds image files with embedded XMP packets for tests.
package xmptest

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
)

// RegionsPacket describes the 640x640 "regions" image. It mixes the RDF
// forms writers use in practice: attribute shorthand, parseType="Resource",
// nested rdf:Description and an rdf:Seq of structs.
const RegionsPacket = `<?xpacket begin="` + "\ufeff" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:rmd="http://universalimages.github.io/rmd/0.1/"
    xmlns:stDim="http://ns.adobe.com/xap/1.0/sType/Dimensions#"
    xmlns:stArea="http://ns.adobe.com/xmp/sType/Area#"
    rmd:Interpolation="linear">
   <rmd:AppliedToDimensions stDim:w="640" stDim:h="640" stDim:unit="pixel"/>
   <rmd:AllowedDerivates rmd:Crop="all"/>
   <rmd:CropArea rdf:parseType="Resource">
    <stArea:x>0.5</stArea:x>
    <stArea:y>0.5</stArea:y>
    <stArea:w>1</stArea:w>
    <stArea:h>0.75</stArea:h>
    <stArea:unit>normalized</stArea:unit>
    <rmd:MinWidth>480</rmd:MinWidth>
   </rmd:CropArea>
   <rmd:SafeArea>
    <rdf:Description stArea:x="0.5" stArea:y="0.5" stArea:w="0.46875"
      stArea:h="0.3125" stArea:unit="normalized" rmd:MaxWidth="300"/>
   </rmd:SafeArea>
   <rmd:RecommendedFrames>
    <rdf:Seq>
     <rdf:li rdf:parseType="Resource">
      <stArea:x>0.5</stArea:x>
      <stArea:y>0.5</stArea:y>
      <stArea:w>1</stArea:w>
      <stArea:h>1</stArea:h>
      <rmd:MinAspectRatio>1</rmd:MinAspectRatio>
      <rmd:MaxAspectRatio>1</rmd:MaxAspectRatio>
     </rdf:li>
    </rdf:Seq>
   </rmd:RecommendedFrames>
   <rmd:PivotPoint stArea:x="0.5" stArea:y="0.5"/>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`

// Colors of the regions test image
var (
	Background = color.RGBA{0, 0, 255, 255}
	CropColor  = color.RGBA{0, 255, 0, 255}
	SafeColor  = color.RGBA{255, 0, 0, 255}
)

// RegionsImage draws the 640x640 regions picture: a blue background, the
// crop area band in green and the safe area in red.
func RegionsImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 640, 640))
	draw.Draw(img, img.Bounds(), &image.Uniform{Background}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 80, 640, 560), &image.Uniform{CropColor}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(170, 220, 470, 420), &image.Uniform{SafeColor}, image.Point{}, draw.Src)
	return img
}

// JPEG encodes img and embeds packet in an APP1 segment
func JPEG(img image.Image, packet string) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return EmbedJPEG(buf.Bytes(), packet)
}

// EmbedJPEG inserts packet as an XMP APP1 segment right after SOI
func EmbedJPEG(data []byte, packet string) ([]byte, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, fmt.Errorf("not a jpeg stream")
	}
	payload := append([]byte("http://ns.adobe.com/xap/1.0/\x00"), packet...)
	if len(payload)+2 > 0xFFFF {
		return nil, fmt.Errorf("xmp packet too large for one segment")
	}

	var seg bytes.Buffer
	seg.Write([]byte{0xFF, 0xE1})
	binary.Write(&seg, binary.BigEndian, uint16(len(payload)+2))
	seg.Write(payload)

	out := make([]byte, 0, len(data)+seg.Len())
	out = append(out, data[:2]...)
	out = append(out, seg.Bytes()...)
	out = append(out, data[2:]...)
	return out, nil
}

// PNG encodes img and embeds packet in an uncompressed iTXt chunk
func PNG(img image.Image, packet string) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	data := buf.Bytes()

	// Signature (8 bytes) plus the IHDR chunk (25 bytes).
	const afterIHDR = 33
	if len(data) < afterIHDR {
		return nil, fmt.Errorf("png stream too short")
	}

	var body bytes.Buffer
	body.WriteString("XML:com.adobe.xmp")
	body.Write([]byte{0, 0, 0, 0, 0}) // keyword end, no compression, method, empty language and translation
	body.WriteString(packet)

	var chunk bytes.Buffer
	binary.Write(&chunk, binary.BigEndian, uint32(body.Len()))
	typed := append([]byte("iTXt"), body.Bytes()...)
	chunk.Write(typed)
	binary.Write(&chunk, binary.BigEndian, crc32.ChecksumIEEE(typed))

	out := make([]byte, 0, len(data)+chunk.Len())
	out = append(out, data[:afterIHDR]...)
	out = append(out, chunk.Bytes()...)
	out = append(out, data[afterIHDR:]...)
	return out, nil
}
