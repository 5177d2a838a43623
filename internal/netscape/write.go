package netscape

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
)

const header = Doctype + `
<!-- This is an automatically generated file.
     It will be read and overwritten.
     DO NOT EDIT! -->
<META HTTP-EQUIV="Content-Type" CONTENT="text/html; charset=UTF-8">
<TITLE>Bookmarks</TITLE>
<H1>Bookmarks</H1>
<DL><p>
`

// Write renders bookmarks as a Netscape bookmark file.
//
// Bookmarks sharing the same tag sequence are written together, in order of
// first appearance, inside a chain of nested folders with one folder per tag.
// Untagged bookmarks stay at the top level. Entries also carry their tags in
// a comma-separated TAGS attribute so that importers without folder support
// keep them. The attribute is left out when a tag itself contains a comma,
// since it could not be split back correctly; the folder chain still holds
// the tags.
func Write(w io.Writer, bookmarks []*domain.Bookmark, generatedAt time.Time) error {
	bw := bufio.NewWriter(w)
	ew := &errWriter{w: bw}

	ew.print(header)

	for _, g := range groupByTags(bookmarks) {
		for depth, tag := range g.tags {
			indent := strings.Repeat("    ", depth+1)
			ew.printf("%s<DT><H3 LAST_MODIFIED=\"%d\">%s</H3>\n", indent, generatedAt.Unix(), html.EscapeString(tag))
			ew.printf("%s<DL><p>\n", indent)
		}

		indent := strings.Repeat("    ", len(g.tags)+1)
		for _, b := range g.bookmarks {
			writeEntry(ew, indent, b)
		}

		for depth := len(g.tags) - 1; depth >= 0; depth-- {
			ew.printf("%s</DL><p>\n", strings.Repeat("    ", depth+1))
		}
	}

	ew.print("</DL><p>\n")
	if ew.err != nil {
		return ew.err
	}
	return bw.Flush()
}

func writeEntry(ew *errWriter, indent string, b *domain.Bookmark) {
	var tags string
	if len(b.Tags) > 0 && !slices.ContainsFunc(b.Tags, func(t string) bool { return strings.Contains(t, ",") }) {
		tags = fmt.Sprintf(` TAGS="%s"`, html.EscapeString(strings.Join(b.Tags, ",")))
	}

	ew.printf("%s<DT><A HREF=\"%s\" ADD_DATE=\"%d\"%s>%s</A>\n",
		indent, html.EscapeString(b.URL), b.Time.Unix(), tags, html.EscapeString(b.Title))

	if b.Desc != "" {
		ew.printf("%s<DD>%s\n", indent, html.EscapeString(b.Desc))
	}
}

type tagGroup struct {
	tags      []string
	bookmarks []*domain.Bookmark
}

// groupByTags groups bookmarks with identical tag sequences, keeping the
// order in which each sequence first appears.
func groupByTags(bookmarks []*domain.Bookmark) []*tagGroup {
	var groups []*tagGroup
	index := make(map[string]*tagGroup)

	for _, b := range bookmarks {
		key := strings.Join(b.Tags, "\x00")
		g, ok := index[key]
		if !ok {
			g = &tagGroup{tags: slices.Clone(b.Tags)}
			index[key] = g
			groups = append(groups, g)
		}
		g.bookmarks = append(g.bookmarks, b)
	}

	return groups
}

// errWriter remembers the first write error and skips later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) print(s string) {
	if ew.err == nil {
		_, ew.err = io.WriteString(ew.w, s)
	}
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err == nil {
		_, ew.err = fmt.Fprintf(ew.w, format, args...)
	}
}
