package capfeed

import (
	"encoding/xml"
	"io"
	"strings"
)

// capAlert mirrors the CAP 1.2 <alert> element. Namespace prefixes (e.g.
// "cap:alert") are stripped before decoding by stripNamespacePrefixes, so
// this struct only ever sees bare element names.
type capAlert struct {
	Identifier string   `xml:"identifier"`
	Sender     string   `xml:"sender"`
	Sent       string   `xml:"sent"`
	Status     string   `xml:"status"`
	MsgType    string   `xml:"msgType"`
	Scope      string   `xml:"scope"`
	Code       []string `xml:"code"`
	Note       string   `xml:"note"`
	References string   `xml:"references"`
	Incidents  string   `xml:"incidents"`
	Info       []capInfo `xml:"info"`
}

type capInfo struct {
	Language     string        `xml:"language"`
	Category     []string      `xml:"category"`
	Event        string        `xml:"event"`
	ResponseType []string      `xml:"responseType"`
	Urgency      string        `xml:"urgency"`
	Severity     string        `xml:"severity"`
	Certainty    string        `xml:"certainty"`
	Effective    string        `xml:"effective"`
	Onset        string        `xml:"onset"`
	Expires      string        `xml:"expires"`
	SenderName   string        `xml:"senderName"`
	Headline     string        `xml:"headline"`
	Description  string        `xml:"description"`
	Instruction  string        `xml:"instruction"`
	Web          string        `xml:"web"`
	Contact      string        `xml:"contact"`
	Parameter    []capParam    `xml:"parameter"`
	Area         []capArea     `xml:"area"`
}

type capParam struct {
	ValueName string `xml:"valueName"`
	Value     string `xml:"value"`
}

type capArea struct {
	AreaDesc string     `xml:"areaDesc"`
	Polygon  []string   `xml:"polygon"`
	Circle   []string   `xml:"circle"`
	Geocode  []capParam `xml:"geocode"`
	Altitude string     `xml:"altitude"`
	Ceiling  string     `xml:"ceiling"`
}

// decodeCAPXML parses a CAP 1.2 document from r. encoding/xml cannot be
// told to ignore namespace prefixes while struct-tag-matching bare element
// names, so the raw bytes are read fully and namespace-stripped first via
// stripNamespacePrefixes (grounded on spec.md §4.2 "XML handling": cap:alert
// and alert must decode identically).
func decodeCAPXML(r io.Reader) (*capAlert, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	stripped, err := stripNamespacePrefixes(raw)
	if err != nil {
		return nil, err
	}

	dec := xml.NewDecoder(strings.NewReader(string(stripped)))
	dec.Strict = false

	var alert capAlert
	if err := dec.Decode(&alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// stripNamespacePrefixes rewrites "prefix:Local" element and attribute
// names to "Local" in a raw XML byte stream by re-emitting tokens through
// a Decoder/Encoder pair. This lets a plain struct-tag decode ignore
// whatever namespace prefix a publisher chooses (cap:, ns0:, none).
func stripNamespacePrefixes(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	dec.Strict = false

	var out strings.Builder
	enc := xml.NewEncoder(&out)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			t.Name.Space = ""
			for i := range t.Attr {
				t.Attr[i].Name.Space = ""
			}
			tok = t
		case xml.EndElement:
			t.Name.Space = ""
			tok = t
		}
		if err := enc.EncodeToken(tok); err != nil {
			return nil, err
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return []byte(out.String()), nil
}
