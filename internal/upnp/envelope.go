package upnp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const (
	envelopeOpen  = `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>`
	envelopeClose = `</s:Body></s:Envelope>`
)

// Args carries named input values; each value is rendered with fmt.Sprint.
type Args map[string]any

// BuildEnvelope renders the request body for an action. Arguments are written
// in the order of names and their values are XML escaped.
func BuildEnvelope(urn, action string, names []string, args Args) string {
	var b strings.Builder
	b.WriteString(envelopeOpen)
	fmt.Fprintf(&b, `<u:%s xmlns:u="%s">`, action, urn)
	for _, name := range names {
		b.WriteString("<" + name + ">")
		xml.EscapeText(&b, []byte(fmt.Sprint(args[name])))
		b.WriteString("</" + name + ">")
	}
	fmt.Fprintf(&b, `</u:%s>`, action)
	b.WriteString(envelopeClose)
	return b.String()
}

// BuildResponse renders a success body the way players do, skipping names
// without a value. Used by fakes.
func BuildResponse(urn, action string, names []string, values map[string]string) string {
	args := make(Args, len(values))
	present := make([]string, 0, len(names))
	for _, name := range names {
		if v, ok := values[name]; ok {
			args[name] = v
			present = append(present, name)
		}
	}
	return BuildEnvelope(urn, action+"Response", present, args)
}

// parseResponse returns the child elements of the {action}Response element.
func parseResponse(body []byte, urn, action string) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	inBody := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: no %sResponse element", ErrUnexpectedResponse, action)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !inBody {
			inBody = start.Name.Local == "Body"
			continue
		}
		if start.Name.Local != action+"Response" || start.Name.Space != urn {
			return nil, fmt.Errorf("%w: got %s in %q, want %sResponse in %q",
				ErrUnexpectedResponse, start.Name.Local, start.Name.Space, action, urn)
		}
		return readChildren(dec)
	}
}

func readChildren(dec *xml.Decoder) (map[string]string, error) {
	values := make(map[string]string)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var text string
			if err := dec.DecodeElement(&text, &t); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
			}
			values[t.Name.Local] = text
		case xml.EndElement:
			return values, nil
		}
	}
}

// ParseRequest decodes an action request body into its action name and
// arguments. Used by fakes that play the player side of the protocol.
func ParseRequest(body []byte) (string, map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	inBody := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !inBody {
			inBody = start.Name.Local == "Body"
			continue
		}
		args, err := readChildren(dec)
		return start.Name.Local, args, err
	}
}
