package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pfrederiksen/ace-monitor/internal/event"
)

// GeneratorName identifies this program in generated documents
const GeneratorName = "ACE Safe Monitor"

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

type tv struct {
	XMLName    xml.Name    `xml:"tv"`
	Generator  string      `xml:"generator-info-name,attr"`
	Channels   []channel   `xml:"channel"`
	Programmes []programme `xml:"programme"`
}

type channel struct {
	ID          string `xml:"id,attr"`
	DisplayName string `xml:"display-name"`
}

type programme struct {
	Channel string `xml:"channel,attr"`
	Start   string `xml:"start,attr,omitempty"`
	Title   string `xml:"title"`
	Desc    string `xml:"desc"`
}

// ChannelID maps a league to an XMLTV channel id
func ChannelID(league string) string {
	return nonAlnum.ReplaceAllString(league, "_")
}

// WriteXMLTV writes an XMLTV guide with one channel per league. Programme
// start times are rendered in loc; events without a league are left out.
func WriteXMLTV(w io.Writer, events []*event.Event, loc *time.Location) error {
	doc := tv{Generator: GeneratorName}

	seen := make(map[string]bool)
	var leagues []string
	for _, evt := range events {
		if evt.League == "" || seen[evt.League] {
			continue
		}
		seen[evt.League] = true
		leagues = append(leagues, evt.League)
	}
	sort.Strings(leagues)
	for _, league := range leagues {
		doc.Channels = append(doc.Channels, channel{ID: ChannelID(league), DisplayName: league})
	}

	for _, evt := range events {
		if evt.League == "" {
			continue
		}
		title := evt.Title
		if title == "" {
			title = "Unknown"
		}
		link := evt.EventURL
		if link == "" {
			link = evt.PageURL
		}
		desc := fmt.Sprintf("Status: %s. Link: %s", strings.ToUpper(string(evt.Status)), link)
		if evt.IframeSrcObservable != "" {
			desc += " | Iframe src: " + evt.IframeSrcObservable
		}
		doc.Programmes = append(doc.Programmes, programme{
			Channel: ChannelID(evt.League),
			Start:   evt.FormatStart(loc, event.XMLTVTimeLayout),
			Title:   title,
			Desc:    desc,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("encoding xmltv: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
