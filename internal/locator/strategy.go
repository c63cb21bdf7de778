// internal/locator/strategy.go
package locator

// Strategy names a W3C locator strategy.
type Strategy string

const (
	CSSSelector Strategy = "css selector"
	LinkText    Strategy = "link text"
	XPath       Strategy = "xpath"
)

// Request is the caller supplied locator. Using is kept as the raw wire string
// so that an unknown strategy can be reported verbatim.
type Request struct {
	Using string `json:"using"`
	Value string `json:"value"`
}

// ParseStrategy maps a wire strategy name to a Strategy.
func ParseStrategy(using string) (Strategy, error) {
	switch s := Strategy(using); s {
	case CSSSelector, LinkText, XPath:
		return s, nil
	default:
		return "", &UnsupportedLocatorError{Strategy: using}
	}
}
