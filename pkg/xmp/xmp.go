// Package xmp reads embedded XMP packets and flattens their RDF into the
// exiv2-style keys understood by package metadata:
//
//	Xmp.rmd.Interpolation                  top-level property
//	Xmp.rmd.CropArea/stArea:x              struct field
//	Xmp.rmd.RecommendedFrames[1]/stArea:w  field of an array item
package xmp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/menta2k/image-regions/pkg/metadata"
)

// ErrNoPacket is returned when the data holds no XMP packet
var ErrNoPacket = errors.New("no XMP packet found")

const (
	nsRDF = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsXML = "http://www.w3.org/XML/1998/namespace"
)

// Values stored for container nodes
const (
	valueStruct = "type=Struct"
	valueSeq    = "type=Seq"
	valueBag    = "type=Bag"
	valueAlt    = "type=Alt"
)

// knownPrefixes are used when a document does not declare a prefix for a
// namespace it uses.
var knownPrefixes = map[string]string{
	"http://ns.adobe.com/xap/1.0/":                  "xmp",
	"http://purl.org/dc/elements/1.1/":              "dc",
	"http://ns.adobe.com/xap/1.0/sType/Dimensions#": "stDim",
	"http://ns.adobe.com/xmp/sType/Area#":           "stArea",
	"http://ns.adobe.com/tiff/1.0/":                 "tiff",
	"http://ns.adobe.com/exif/1.0/":                 "exif",
	"http://universalimages.github.io/rmd/0.1/":     "rmd",
}

// ReadFile extracts and parses the XMP packet of an image file
func ReadFile(path string) (metadata.MapStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Decode(data)
}

// Read extracts and parses the XMP packet of an image stream
func Read(r io.Reader) (metadata.MapStore, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return Decode(data)
}

// Decode extracts and parses the XMP packet embedded in data
func Decode(data []byte) (metadata.MapStore, error) {
	packet, err := ExtractPacket(data)
	if err != nil {
		return nil, err
	}
	return Parse(packet)
}

// ExtractPacket locates the XMP packet inside raw JPEG, PNG or WebP bytes.
// It prefers the x:xmpmeta element and falls back to the xpacket envelope.
func ExtractPacket(data []byte) ([]byte, error) {
	if start := bytes.Index(data, []byte("<x:xmpmeta")); start >= 0 {
		end := bytes.Index(data[start:], []byte("</x:xmpmeta>"))
		if end < 0 {
			return nil, fmt.Errorf("unterminated x:xmpmeta at offset %d", start)
		}
		return data[start : start+end+len("</x:xmpmeta>")], nil
	}

	if start := bytes.Index(data, []byte("<?xpacket begin=")); start >= 0 {
		end := bytes.Index(data[start:], []byte("<?xpacket end="))
		if end < 0 {
			return nil, fmt.Errorf("unterminated xpacket at offset %d", start)
		}
		body := data[start : start+end]
		// Drop the processing instruction that opens the packet.
		if i := bytes.Index(body, []byte("?>")); i >= 0 {
			body = body[i+2:]
		}
		return body, nil
	}

	return nil, ErrNoPacket
}

// element is a parsed XML element
type element struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*element
	text     strings.Builder
}

func (e *element) is(space, local string) bool {
	return e.name.Space == space && e.name.Local == local
}

func (e *element) attr(space, local string) (string, bool) {
	for _, a := range e.attrs {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// fields returns the attributes that carry property values
func (e *element) fields() []xml.Attr {
	var out []xml.Attr
	for _, a := range e.attrs {
		switch a.Name.Space {
		case "", "xmlns", nsRDF, nsXML:
		default:
			out = append(out, a)
		}
	}
	return out
}

// Parse flattens an XMP packet into a store
func Parse(packet []byte) (metadata.MapStore, error) {
	root, prefixes, err := parseTree(packet)
	if err != nil {
		return nil, err
	}

	p := &flattener{prefixes: prefixes, out: metadata.MapStore{}}
	for _, rdf := range find(root, nsRDF, "RDF") {
		for _, desc := range rdf.children {
			if !desc.is(nsRDF, "Description") {
				continue
			}
			for _, a := range desc.fields() {
				p.out[p.topKey(a.Name)] = a.Value
			}
			for _, prop := range desc.children {
				p.property(p.topKey(prop.name), prop)
			}
		}
	}
	return p.out, nil
}

func parseTree(packet []byte) (*element, map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(packet))
	dec.Strict = false

	root := &element{}
	stack := []*element{root}
	prefixes := map[string]string{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse XMP: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" {
					if _, seen := prefixes[a.Value]; !seen {
						prefixes[a.Value] = a.Name.Local
					}
				}
			}
			el := &element{name: t.Name, attrs: t.Attr}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			stack[len(stack)-1].text.Write(t)
		}
	}
	return root, prefixes, nil
}

func find(e *element, space, local string) []*element {
	if e.is(space, local) {
		return []*element{e}
	}
	var out []*element
	for _, c := range e.children {
		out = append(out, find(c, space, local)...)
	}
	return out
}

type flattener struct {
	prefixes map[string]string
	out      metadata.MapStore
}

func (p *flattener) prefix(space string) string {
	if prefix, ok := p.prefixes[space]; ok {
		return prefix
	}
	if prefix, ok := knownPrefixes[space]; ok {
		return prefix
	}
	return "ns"
}

func (p *flattener) topKey(n xml.Name) string {
	return "Xmp." + p.prefix(n.Space) + "." + n.Local
}

func (p *flattener) fieldKey(parent string, n xml.Name) string {
	return parent + "/" + p.prefix(n.Space) + ":" + n.Local
}

// property stores el, and everything below it, under key
func (p *flattener) property(key string, el *element) {
	if v, ok := el.attr(nsRDF, "resource"); ok {
		p.out[key] = v
		return
	}
	if pt, _ := el.attr(nsRDF, "parseType"); pt == "Resource" {
		p.structure(key, el)
		return
	}

	if len(el.children) > 0 {
		child := el.children[0]
		switch {
		case child.is(nsRDF, "Seq"):
			p.array(key, valueSeq, child)
		case child.is(nsRDF, "Bag"):
			p.array(key, valueBag, child)
		case child.is(nsRDF, "Alt"):
			p.array(key, valueAlt, child)
		case child.is(nsRDF, "Description"):
			p.structure(key, child)
		default:
			p.structure(key, el)
		}
		return
	}

	if len(el.fields()) > 0 {
		p.structure(key, el)
		return
	}

	p.out[key] = strings.TrimSpace(el.text.String())
}

func (p *flattener) structure(key string, el *element) {
	p.out[key] = valueStruct
	for _, a := range el.fields() {
		p.out[p.fieldKey(key, a.Name)] = a.Value
	}
	for _, c := range el.children {
		p.property(p.fieldKey(key, c.name), c)
	}
}

func (p *flattener) array(key, kind string, container *element) {
	p.out[key] = kind
	i := 0
	for _, li := range container.children {
		if !li.is(nsRDF, "li") {
			continue
		}
		i++
		p.property(fmt.Sprintf("%s[%d]", key, i), li)
	}
}
