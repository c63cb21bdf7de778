// internal/locator/resolver.go
package locator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Resolver dispatches a Request to the matching query engine. It holds no
// state and is safe to share between pages.
type Resolver struct{}

// NewResolver returns a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve performs exactly one lookup against doc. A legitimate strategy with
// zero matches returns (nil, nil), which callers treat as a retryable miss.
func (r *Resolver) Resolve(doc *html.Node, req Request) (*html.Node, error) {
	strategy, err := ParseStrategy(req.Using)
	if err != nil {
		return nil, err
	}

	switch strategy {
	case CSSSelector:
		return r.matchCSS(doc, req.Value)
	case LinkText:
		return r.matchLinkText(doc, req.Value)
	case XPath:
		return r.matchXPath(doc, req.Value)
	}
	// ParseStrategy only returns known strategies.
	return nil, &UnsupportedLocatorError{Strategy: req.Using}
}

func (r *Resolver) matchCSS(doc *html.Node, selector string) (*html.Node, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, &InvalidSelectorError{Selector: selector, Err: errors.New("empty selector")}
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, &InvalidSelectorError{Selector: selector, Err: err}
	}
	return sel.MatchFirst(doc), nil
}

// matchLinkText rewrites the link text into a path expression and hands it to
// the XPath matcher. There is no separate text matching logic.
func (r *Resolver) matchLinkText(doc *html.Node, text string) (*html.Node, error) {
	return r.matchXPath(doc, LinkTextXPath(text))
}

func (r *Resolver) matchXPath(doc *html.Node, expr string) (*html.Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, &InvalidSelectorError{Selector: expr, Err: err}
	}
	return firstElement(doc, compiled, expr)
}

// firstElement evaluates compiled against doc. Some expressions that compile
// still panic inside the evaluator, so a panic is reported as an invalid
// selector instead of escaping onto the page loop.
func firstElement(doc *html.Node, compiled *xpath.Expr, expr string) (node *html.Node, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			node = nil
			err = &InvalidSelectorError{Selector: expr, Err: fmt.Errorf("evaluation failed: %v", rec)}
		}
	}()

	iter, ok := compiled.Evaluate(htmlquery.CreateXPathNavigator(doc)).(*xpath.NodeIterator)
	if !ok {
		return nil, &InvalidSelectorError{Selector: expr, Err: errors.New("expression does not evaluate to a node set")}
	}
	if !iter.MoveNext() {
		return nil, nil
	}

	nav, ok := iter.Current().(*htmlquery.NodeNavigator)
	if !ok {
		return nil, &InvalidSelectorError{Selector: expr, Err: fmt.Errorf("unexpected navigator %T", iter.Current())}
	}
	if nav.NodeType() != xpath.ElementNode {
		return nil, &InvalidSelectorError{Selector: expr, Err: errors.New("first match is not an element")}
	}
	return nav.Current(), nil
}

// LinkTextXPath returns a path expression selecting rendered elements in the
// body that directly contain text including s. Head content, scripts and
// styles never match.
func LinkTextXPath(s string) string {
	return fmt.Sprintf("//body//*[not(self::script or self::style)][text()[contains(., %s)]]", xpathLiteral(s))
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so a value holding both quote kinds is split with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	var b strings.Builder
	b.WriteString("concat(")
	for i, part := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'" + part + "'")
	}
	b.WriteString(")")
	return b.String()
}
