package netscape

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
)

const header = `<!DOCTYPE NETSCAPE-Bookmark-file-1>
<META HTTP-EQUIV="Content-Type" CONTENT="text/html; charset=UTF-8">
<TITLE>Bookmarks</TITLE>
<H1>Bookmarks</H1>
<DL><p>
`

// Write exports records as a flat Netscape bookmark list. Tags go to the
// TAGS attribute so Parse reads them back.
func Write(w io.Writer, records []bookmarks.Record) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(header); err != nil {
		return err
	}

	for _, r := range records {
		fmt.Fprintf(bw, `    <DT><A HREF="%s" ADD_DATE="%d"`,
			html.EscapeString(r.URL), r.TimeAdded/int64(time.Second/time.Microsecond))
		if len(r.Tags) > 0 {
			fmt.Fprintf(bw, ` TAGS="%s"`, html.EscapeString(strings.Join(r.Tags, ",")))
		}
		fmt.Fprintf(bw, ">%s</A>\n", html.EscapeString(r.Title))
	}

	if _, err := bw.WriteString("</DL><p>\n"); err != nil {
		return err
	}
	return bw.Flush()
}
