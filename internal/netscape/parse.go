// Package netscape reads and writes the Netscape bookmark file format that
// every major browser imports and exports.
package netscape

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
)

// Doctype is the declaration that marks a Netscape bookmark file.
const Doctype = "<!DOCTYPE NETSCAPE-Bookmark-file-1>"

var hrefPattern = regexp.MustCompile(`(?i)^(f|ht)tps?://`)

// IsNetscape reports whether data carries the Netscape doctype. The check is
// case-insensitive.
func IsNetscape(data []byte) bool {
	return bytes.Contains(bytes.ToUpper(data), []byte(strings.ToUpper(Doctype)))
}

// Parse reads a Netscape bookmark file. A document without the Netscape
// doctype yields no bookmarks and no error.
func Parse(r io.Reader) ([]domain.BookmarkInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bookmark file: %w", err)
	}
	if !IsNetscape(data) {
		return []domain.BookmarkInput{}, nil
	}
	return ParseMarkup(bytes.NewReader(data))
}

// ParseMarkup extracts bookmarks from Netscape-style markup without checking
// the doctype.
//
// Every open <H3> folder becomes a tag on the bookmarks inside it; a folder
// closes at its </DL>. TAGS attributes are merged with the folder tags and
// ADD_DATE becomes the bookmark time. A <DD> following an entry is its
// description, converted to Markdown when it contains markup.
func ParseMarkup(r io.Reader) ([]domain.BookmarkInput, error) {
	p := &parser{z: nethtml.NewTokenizer(r), out: []domain.BookmarkInput{}}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.out, nil
}

type parser struct {
	z       *nethtml.Tokenizer
	folders []string
	out     []domain.BookmarkInput
	// last is the index of the most recent bookmark, or -1 once a <DD>
	// can no longer belong to it.
	last int
}

func (p *parser) run() error {
	p.last = -1
	for {
		tt := p.z.Next()
		switch tt {
		case nethtml.ErrorToken:
			if err := p.z.Err(); err != io.EOF {
				return fmt.Errorf("tokenize bookmark file: %w", err)
			}
			return nil

		case nethtml.StartTagToken:
			tok := p.z.Token()
			switch tok.DataAtom {
			case atom.H3:
				p.folders = append(p.folders, p.text(atom.H3))
				p.last = -1
			case atom.A:
				p.anchor(tok)
			case atom.Dd:
				if p.last >= 0 {
					p.out[p.last].Desc = p.description()
				}
				p.last = -1
			case atom.Dl:
				p.last = -1
			}

		case nethtml.EndTagToken:
			if name, _ := p.z.TagName(); atom.Lookup(name) == atom.Dl {
				if n := len(p.folders); n > 0 {
					p.folders = p.folders[:n-1]
				}
				p.last = -1
			}
		}
	}
}

func (p *parser) anchor(tok nethtml.Token) {
	var (
		href  string
		tags  []string
		added time.Time
	)
	for _, attr := range tok.Attr {
		switch attr.Key {
		case "href":
			href = strings.TrimSpace(attr.Val)
		case "tags":
			for t := range strings.SplitSeq(attr.Val, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
		case "add_date":
			if secs, err := strconv.ParseInt(strings.TrimSpace(attr.Val), 10, 64); err == nil && secs > 0 {
				added = time.Unix(secs, 0).UTC()
			}
		}
	}

	title := p.text(atom.A)
	if !hrefPattern.MatchString(href) {
		p.last = -1
		return
	}
	if title == "" {
		title = href
	}

	p.out = append(p.out, domain.BookmarkInput{
		URL:   href,
		Title: title,
		Tags:  domain.NormalizeTags(append(append([]string{}, p.folders...), tags...)),
		Time:  added,
	})
	p.last = len(p.out) - 1
}

// text collects the text up to the closing tag of a.
func (p *parser) text(a atom.Atom) string {
	var b strings.Builder
	for {
		switch p.z.Next() {
		case nethtml.ErrorToken:
			return strings.TrimSpace(b.String())
		case nethtml.TextToken:
			b.Write(p.z.Text())
		case nethtml.EndTagToken:
			if name, _ := p.z.TagName(); atom.Lookup(name) == a {
				return strings.TrimSpace(b.String())
			}
		}
	}
}

// description collects a <DD> body, which ends where the next entry, folder
// or list begins. The terminating token is left for run to handle.
func (p *parser) description() string {
	var (
		raw    bytes.Buffer
		markup bool
	)
	for {
		tt := p.z.Next()
		switch tt {
		case nethtml.ErrorToken:
			return finishDescription(raw.String(), markup)
		case nethtml.TextToken:
			raw.Write(p.z.Raw())
		case nethtml.StartTagToken, nethtml.EndTagToken, nethtml.SelfClosingTagToken:
			name, _ := p.z.TagName()
			switch a := atom.Lookup(name); a {
			case atom.Dt, atom.Dl, atom.H3, atom.Dd:
				desc := finishDescription(raw.String(), markup)
				p.replay(tt, a)
				return desc
			}
			markup = true
			raw.Write(p.z.Raw())
		}
	}
}

// replay applies the folder bookkeeping of a token consumed by description.
func (p *parser) replay(tt nethtml.TokenType, a atom.Atom) {
	switch {
	case tt == nethtml.StartTagToken && a == atom.H3:
		p.folders = append(p.folders, p.text(atom.H3))
	case tt == nethtml.EndTagToken && a == atom.Dl:
		if n := len(p.folders); n > 0 {
			p.folders = p.folders[:n-1]
		}
	}
}

func finishDescription(raw string, markup bool) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !markup {
		return html.UnescapeString(raw)
	}
	md, err := htmltomarkdown.ConvertString(raw)
	if err != nil {
		return html.UnescapeString(raw)
	}
	return strings.TrimSpace(md)
}
