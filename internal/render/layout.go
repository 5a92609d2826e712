package render

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var lineBreakRunPattern = regexp.MustCompile(`(?i)(?:<br\s*/?>\s*){3,}`)

const orderedItemStyle = "margin-bottom: 0.3em; padding-left: 0.5em;"

// OptimizeLayout collapses long runs of line breaks and pads the items of ordered lists.
func OptimizeLayout(fragment string) (string, error) {
	fragment = lineBreakRunPattern.ReplaceAllString(fragment, "<br><br>")
	if !strings.Contains(fragment, "<ol") {
		return fragment, nil
	}

	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), container)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		styleOrderedItems(n, false)
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// styleOrderedItems matches every li below an ol, including items of nested lists.
func styleOrderedItems(n *html.Node, insideOrdered bool) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Ol:
			insideOrdered = true
		case atom.Li:
			if insideOrdered {
				setAttr(n, "style", orderedItemStyle)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		styleOrderedItems(c, insideOrdered)
	}
}

func setAttr(n *html.Node, key, value string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}
