// Package netscape reads and writes the Netscape bookmark file format that
// browsers use for bookmark import and export.
package netscape

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
)

// Result holds the bookmarks found in a file and the folder names, which
// become tags.
type Result struct {
	Bookmarks []*bookmarks.Bookmark
	Tags      []string
}

// Parser parses Netscape bookmark HTML.
type Parser struct {
	now func() time.Time
}

// NewParser creates a new parser
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// Parse reads a bookmark file. A bookmark is tagged with the folder that
// contains it plus anything in its TAGS attribute. Bookmarks without
// ADD_DATE are stamped with the current time, one microsecond apart in
// document order.
func (p *Parser) Parse(r io.Reader) (Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse bookmarks html: %w", err)
	}

	var res Result
	seenTags := make(map[string]struct{})
	addTag := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seenTags[name]; ok {
			return
		}
		seenTags[name] = struct{}{}
		res.Tags = append(res.Tags, name)
	}

	base := p.now().UnixMicro()
	var folders []string
	var pending string // folder named by the last <h3>, waiting for its <dl>

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		opened := false
		if n.Type == html.ElementNode {
			switch n.Data {
			case "h3":
				pending = strings.TrimSpace(textOf(n))
			case "dl":
				if pending != "" {
					folders = append(folders, pending)
					addTag(pending)
					pending = ""
					opened = true
				}
			case "a":
				if b := p.bookmark(n, folders, base-int64(len(res.Bookmarks))); b != nil {
					for _, t := range b.Tags() {
						addTag(t)
					}
					res.Bookmarks = append(res.Bookmarks, b)
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if opened {
			folders = folders[:len(folders)-1]
		}
	}

	walk(doc)
	return res, nil
}

func (p *Parser) bookmark(n *html.Node, folders []string, fallback int64) *bookmarks.Bookmark {
	r := bookmarks.Record{TimeAdded: fallback}
	for _, attr := range n.Attr {
		switch attr.Key {
		case "href":
			r.URL = strings.TrimSpace(attr.Val)
		case "add_date":
			if sec, err := strconv.ParseInt(strings.TrimSpace(attr.Val), 10, 64); err == nil && sec > 0 {
				r.TimeAdded = sec * int64(time.Second/time.Microsecond)
			}
		case "tags":
			for _, t := range strings.Split(attr.Val, ",") {
				if t = strings.TrimSpace(t); t != "" {
					r.Tags = append(r.Tags, t)
				}
			}
		}
	}
	if r.URL == "" {
		return nil
	}
	if len(folders) > 0 {
		r.Tags = append(r.Tags, folders[len(folders)-1])
	}
	r.Title = strings.TrimSpace(textOf(n))
	if r.Title == "" {
		r.Title = r.URL
	}
	return bookmarks.FromRecord(r)
}

func textOf(n *html.Node) string {
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
