// Package extract turns HTML editions of books into the plain-text layout the
// gutenberg package expects: headings on their own lines and paragraphs
// separated by blank lines.
package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Document is the plain-text rendition of an HTML book.
type Document struct {
	Title string
	Text  string
}

// FromHTML extracts the readable text of input. Scripts, styles, navigation,
// page-number markers and the distributor's header/footer sections are
// dropped. Image alt text is dropped; figure captions are kept as their own
// paragraph so they never merge into body text.
func FromHTML(input []byte) Document {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil || node == nil {
		return Document{}
	}
	title := ""
	if t := findFirst(node, "title"); t != nil {
		title = collapseSpaces(textOf(t))
	}
	root := findFirst(node, "body")
	if root == nil {
		root = node
	}
	w := &writer{}
	w.walk(root)
	return Document{Title: title, Text: normalizeWhitespace(w.b.String())}
}

type writer struct {
	b     strings.Builder
	inPre bool
}

func (w *writer) walk(n *html.Node) {
	if n.Type == html.TextNode {
		data := n.Data
		if !w.inPre {
			data = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ").Replace(data)
		}
		w.b.WriteString(data)
		return
	}
	if n.Type == html.ElementNode {
		if skip(n) {
			return
		}
		switch strings.ToLower(n.Data) {
		case "br":
			w.b.WriteString("\n")
			return
		case "hr":
			w.b.WriteString("\n\n")
			return
		case "pre":
			w.inPre = true
			w.b.WriteString("\n\n")
			defer func() { w.inPre = false; w.b.WriteString("\n\n") }()
		case "h1", "h2", "h3", "h4", "h5", "h6", "p", "blockquote", "figcaption", "li", "dt", "dd", "tr":
			w.b.WriteString("\n\n")
			defer w.b.WriteString("\n\n")
		case "div", "section", "article", "table":
			w.b.WriteString("\n")
			defer w.b.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

// skip reports elements whose text never belongs to the story.
func skip(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "script", "style", "noscript", "nav", "footer", "iframe", "img", "svg", "head":
		return true
	}
	for _, attr := range n.Attr {
		val := strings.ToLower(attr.Val)
		switch strings.ToLower(attr.Key) {
		case "id":
			if val == "pg-header" || val == "pg-footer" || strings.HasPrefix(val, "pg-machine-header") {
				return true
			}
		case "class":
			for _, cls := range strings.Fields(val) {
				switch cls {
				case "pagenum", "pageno", "page-number", "pg-boilerplate", "toc", "tnote":
					return true
				}
			}
		}
	}
	return false
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := findFirst(c, tag); res != nil {
			return res
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
		}
	}
	dfs(n)
	return b.String()
}

// normalizeWhitespace trims every line, collapses space runs inside lines and
// keeps at most one blank line in a row.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := collapseSpaces(line)
		if trimmed == "" {
			if len(out) == 0 || out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, trimmed)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
