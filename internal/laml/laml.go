// Package laml builds the XML call-control documents (TwiML/LaML) returned to
// providers.
package laml

import (
	"bytes"
	"encoding/xml"
	"net/http"
)

const ContentType = "text/xml"

type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type Record struct {
	XMLName                 xml.Name `xml:"Record"`
	MaxLength               int      `xml:"maxLength,attr,omitempty"`
	RecordingStatusCallback string   `xml:"recordingStatusCallback,attr,omitempty"`
}

type Dial struct {
	XMLName  xml.Name `xml:"Dial"`
	CallerID string   `xml:"callerId,attr,omitempty"`
	Timeout  int      `xml:"timeout,attr,omitempty"`
	Numbers  []Number
}

type Number struct {
	XMLName xml.Name `xml:"Number"`
	Value   string   `xml:",chardata"`
}

func New(verbs ...any) *Response {
	return &Response{Verbs: verbs}
}

// Marshal renders the document with the XML declaration.
func (r *Response) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	if err := xml.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Empty is the acknowledgement returned to inbound webhooks.
func Empty() []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)
}

// Write sends body as a 200 text/xml response.
func Write(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
