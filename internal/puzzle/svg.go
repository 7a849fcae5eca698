package puzzle

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	outlineID   = "outline"
	piecePrefix = "piece_"
)

// svgShape is an element carrying an id and optional path data.
type svgShape struct {
	ID      string
	Data    string
	HasData bool
}

type svgDocument struct {
	Outline *svgShape
	Pieces  []svgShape
}

// parseSVG walks every element of the document and collects the outline and
// piece_* elements in document order. Namespaces are ignored.
func parseSVG(data []byte) (*svgDocument, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	var doc svgDocument
	sawRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse svg: %w", err)
		}

		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true

		shape, ok := shapeOf(el)
		if !ok {
			continue
		}
		switch {
		case shape.ID == outlineID:
			if doc.Outline == nil {
				s := shape
				doc.Outline = &s
			}
		case strings.HasPrefix(strings.ToLower(shape.ID), piecePrefix):
			doc.Pieces = append(doc.Pieces, shape)
		}
	}

	if !sawRoot {
		return nil, errors.New("parse svg: document is empty")
	}
	return &doc, nil
}

func shapeOf(el xml.StartElement) (svgShape, bool) {
	var s svgShape
	found := false
	for _, attr := range el.Attr {
		switch attr.Name.Local {
		case "id":
			s.ID = attr.Value
			found = true
		case "d":
			s.Data = attr.Value
			s.HasData = strings.TrimSpace(attr.Value) != ""
		}
	}
	return s, found && strings.TrimSpace(s.ID) != ""
}
