package cwmp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Namespace URIs declared on every envelope.
const (
	NamespaceSOAPEnv = "http://schemas.xmlsoap.org/soap/envelope/"
	NamespaceSOAPEnc = "http://schemas.xmlsoap.org/soap/encoding/"
	NamespaceXSD     = "http://www.w3.org/2001/XMLSchema"
	NamespaceXSI     = "http://www.w3.org/2001/XMLSchema-instance"
	NamespaceCWMP    = "urn:dslforum-org:cwmp-1-0"
)

// Codec errors.
var (
	ErrNoEnvelope = errors.New("document has no SOAP envelope")
	ErrNoBody     = errors.New("envelope has no body element")
	ErrNilMessage = errors.New("nil message")
)

// Message is an RPC body element.
type Message interface {
	// MethodName returns the RPC name without prefix, e.g. "Inform".
	MethodName() string
}

// Envelope is a decoded SOAP envelope.
type Envelope struct {
	// ID is the cwmp:ID header value, empty when absent.
	ID string

	// Method is the local name of the first body element.
	Method string

	// Fault is set when the body carries a SOAP fault.
	Fault *Fault

	body []byte
}

// DecodeBody decodes the RPC element into v.
func (e *Envelope) DecodeBody(v any) error {
	if err := xml.Unmarshal(e.body, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Method, err)
	}
	return nil
}

// Body returns the raw RPC element.
func (e *Envelope) Body() []byte {
	return e.body
}

type envelopeXML struct {
	XMLName xml.Name  `xml:"soap-env:Envelope"`
	SOAPEnv string    `xml:"xmlns:soap-env,attr"`
	SOAPEnc string    `xml:"xmlns:soap-enc,attr"`
	XSD     string    `xml:"xmlns:xsd,attr"`
	XSI     string    `xml:"xmlns:xsi,attr"`
	CWMP    string    `xml:"xmlns:cwmp,attr"`
	Header  headerXML `xml:"soap-env:Header"`
	Body    bodyXML   `xml:"soap-env:Body"`
}

type headerXML struct {
	ID idXML `xml:"cwmp:ID"`
}

type idXML struct {
	MustUnderstand string `xml:"soap-env:mustUnderstand,attr"`
	Value          string `xml:",chardata"`
}

type bodyXML struct {
	msg Message
}

func (b bodyXML) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	name := "cwmp:" + b.msg.MethodName()
	if _, ok := b.msg.(*SOAPFault); ok {
		name = "soap-env:Fault"
	}
	if err := e.EncodeElement(b.msg, xml.StartElement{Name: xml.Name{Local: name}}); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// Encode builds a complete SOAP document carrying msg.
func Encode(id string, msg Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	env := envelopeXML{
		SOAPEnv: NamespaceSOAPEnv,
		SOAPEnc: NamespaceSOAPEnc,
		XSD:     NamespaceXSD,
		XSI:     NamespaceXSI,
		CWMP:    NamespaceCWMP,
		Header:  headerXML{ID: idXML{MustUnderstand: "1", Value: id}},
		Body:    bodyXML{msg: msg},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MethodName(), err)
	}
	return buf.Bytes(), nil
}

// Decode parses a SOAP document. An empty or whitespace-only document
// decodes to a nil envelope and no error.
func Decode(data []byte) (*Envelope, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	d := xml.NewDecoder(bytes.NewReader(data))
	env := &Envelope{}
	var (
		inEnvelope, inHeader, inBody bool
	)

	for {
		tok, err := d.Token()
		if err != nil {
			if !inEnvelope {
				return nil, ErrNoEnvelope
			}
			return nil, fmt.Errorf("decode envelope: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case !inEnvelope:
				if t.Name.Local != "Envelope" {
					return nil, ErrNoEnvelope
				}
				inEnvelope = true
			case inBody:
				return env, decodeMethod(d, t, env)
			case inHeader && t.Name.Local == "ID":
				var id string
				if err := d.DecodeElement(&id, &t); err != nil {
					return nil, fmt.Errorf("decode header id: %w", err)
				}
				env.ID = strings.TrimSpace(id)
			case inHeader:
				if err := d.Skip(); err != nil {
					return nil, err
				}
			case t.Name.Local == "Header":
				inHeader = true
			case t.Name.Local == "Body":
				inBody = true
			default:
				if err := d.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			switch {
			case inHeader && t.Name.Local == "Header":
				inHeader = false
			case inBody && t.Name.Local == "Body":
				return nil, ErrNoBody
			case t.Name.Local == "Envelope":
				return nil, ErrNoBody
			}
		}
	}
}

type rawElement struct {
	Inner []byte `xml:",innerxml"`
}

func decodeMethod(d *xml.Decoder, start xml.StartElement, env *Envelope) error {
	var raw rawElement
	if err := d.DecodeElement(&raw, &start); err != nil {
		return fmt.Errorf("decode %s: %w", start.Name.Local, err)
	}

	env.Method = start.Name.Local
	env.body = wrapElement(start.Name.Local, raw.Inner)

	if env.Method == "Fault" {
		var sf SOAPFault
		if err := env.DecodeBody(&sf); err != nil {
			return err
		}
		f := sf.Detail.Fault
		env.Fault = &f
	}
	return nil
}

func wrapElement(name string, inner []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(inner) + 2*len(name) + 5)
	buf.WriteByte('<')
	buf.WriteString(name)
	buf.WriteByte('>')
	buf.Write(inner)
	buf.WriteString("</")
	buf.WriteString(name)
	buf.WriteByte('>')
	return buf.Bytes()
}

// NewID returns a random correlation id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
