package cwmp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
)

// Format re-indents a SOAP document for verbose logs. Documents that do not
// parse are returned unchanged.
func Format(data []byte) []byte {
	if len(bytes.TrimSpace(data)) == 0 {
		return data
	}

	d := xml.NewDecoder(bytes.NewReader(data))
	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)
	e.Indent("", "  ")

	for {
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return data
		}
		if cd, ok := tok.(xml.CharData); ok {
			if len(bytes.TrimSpace(cd)) == 0 {
				continue
			}
		}
		if err := e.EncodeToken(flatten(xml.CopyToken(tok))); err != nil {
			return data
		}
	}
	if err := e.Flush(); err != nil {
		return data
	}
	return buf.Bytes()
}

// flatten folds raw prefixes into local names so the encoder writes them
// back verbatim instead of treating them as namespace URIs.
func flatten(tok xml.Token) xml.Token {
	switch t := tok.(type) {
	case xml.StartElement:
		t.Name = flatName(t.Name)
		for i := range t.Attr {
			t.Attr[i].Name = flatName(t.Attr[i].Name)
		}
		return t
	case xml.EndElement:
		t.Name = flatName(t.Name)
		return t
	}
	return tok
}

func flatName(n xml.Name) xml.Name {
	if n.Space == "" {
		return n
	}
	return xml.Name{Local: n.Space + ":" + n.Local}
}
