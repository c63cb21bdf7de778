// internal/locator/describe.go
package locator

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// UniqueXPath builds a path expression that selects n, anchored at the closest
// ancestor carrying an id. Used to describe resolved nodes in logs.
func UniqueXPath(n *html.Node) string {
	if n == nil {
		return ""
	}

	var steps []string
	for cur := n; cur != nil && cur.Type != html.DocumentNode; cur = cur.Parent {
		if cur.Type != html.ElementNode || cur.Data == "" {
			continue
		}
		tag := strings.ToLower(cur.Data)

		if id := htmlquery.SelectAttr(cur, "id"); id != "" {
			steps = append(steps, fmt.Sprintf("//*[@id=%s]", xpathLiteral(id)))
			break
		}
		steps = append(steps, fmt.Sprintf("%s[%d]", tag, siblingIndex(cur, tag)))
	}

	if len(steps) == 0 {
		return "/"
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}

	path := strings.Join(steps, "/")
	if !strings.HasPrefix(path, "//") {
		path = "/" + path
	}
	return path
}

// siblingIndex is the 1-based position of n among preceding siblings with the
// same tag.
func siblingIndex(n *html.Node, tag string) int {
	index := 1
	for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
			index++
		}
	}
	return index
}
