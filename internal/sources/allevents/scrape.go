package allevents

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ldEvent is the subset of a schema.org Event this scraper reads.
type ldEvent struct {
	Type        string          `json:"@type"`
	ID          string          `json:"@id"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	StartDate   string          `json:"startDate"`
	Description string          `json:"description"`
	EventStatus string          `json:"eventStatus"`
	Image       json.RawMessage `json:"image"`
	Location    json.RawMessage `json:"location"`
}

// card is an event read from the HTML card markup.
type card struct {
	Title string
	Date  string
}

// extractLDEvents returns every @type=Event object found in JSON-LD script
// blocks. Blocks may hold a single object or an array; malformed blocks are
// skipped.
func extractLDEvents(doc *html.Node) []ldEvent {
	var events []ldEvent
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Script || attr(n, "type") != "application/ld+json" {
			return true
		}
		events = append(events, decodeLDBlock(textContent(n))...)
		return false
	})
	return events
}

func decodeLDBlock(raw string) []ldEvent {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var objects []ldEvent
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &objects); err != nil {
			return nil
		}
	} else {
		var single ldEvent
		if err := json.Unmarshal([]byte(raw), &single); err != nil {
			return nil
		}
		objects = []ldEvent{single}
	}

	events := objects[:0]
	for _, obj := range objects {
		if obj.Type == "Event" {
			events = append(events, obj)
		}
	}
	return events
}

// extractCards reads div.event-card blocks. Cards without a title are skipped.
func extractCards(doc *html.Node) []card {
	var cards []card
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Div || !hasClass(n, "event-card") {
			return true
		}
		var c card
		walk(n, func(child *html.Node) bool {
			switch {
			case hasClass(child, "event-card-title") && c.Title == "":
				c.Title = collapse(textContent(child))
				return false
			case hasClass(child, "event-card-date") && c.Date == "":
				c.Date = collapse(textContent(child))
				return false
			}
			return true
		})
		if c.Title != "" {
			cards = append(cards, c)
		}
		return false
	})
	return cards
}

// walk visits n and its descendants depth-first. Returning false from visit
// skips the node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if n.Type == html.ElementNode || n.Type == html.DocumentNode {
		if n.Type == html.ElementNode && !visit(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// locationName reads location.name when location is an object.
func locationName(raw json.RawMessage) string {
	var loc struct {
		Name string `json:"name"`
	}
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	if err := json.Unmarshal(raw, &loc); err != nil {
		return ""
	}
	return strings.TrimSpace(loc.Name)
}

// imageURL reads image given as a string, an array of strings or an
// ImageObject.
func imageURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[0]
	}
	var obj struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.URL
	}
	return ""
}

// splitStart splits an ISO start like "2024-06-01T19:30:00+05:30" into the
// date part and "HH:MM".
func splitStart(s string) (date, clock string) {
	s = strings.TrimSpace(s)
	date, rest, found := strings.Cut(s, "T")
	if !found {
		return date, ""
	}
	if len(rest) > 5 {
		rest = rest[:5]
	}
	return date, rest
}
