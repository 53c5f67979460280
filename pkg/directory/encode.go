package directory

import (
	"encoding/xml"
	"io"
)

type xmlSettings struct {
	XMLName xml.Name   `xml:"settings"`
	Servers xmlServers `xml:"servers"`
}

type xmlServers struct {
	Servers []xmlServer `xml:"server"`
}

type xmlServer struct {
	URL     string `xml:"url,attr,omitempty"`
	Name    string `xml:"name,attr,omitempty"`
	Country string `xml:"country,attr,omitempty"`
	Sponsor string `xml:"sponsor,attr,omitempty"`
	ID      string `xml:"id,attr,omitempty"`
}

// Encode writes records to w as a directory document in the same schema
// Parse reads.
func Encode(w io.Writer, records []ServerRecord) error {
	doc := xmlSettings{}
	for _, r := range records {
		doc.Servers.Servers = append(doc.Servers.Servers, xmlServer{
			URL:     r.URL,
			Name:    r.City,
			Country: r.Country,
			Sponsor: r.Provider,
			ID:      r.ID,
		})
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
