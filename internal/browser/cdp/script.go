// internal/browser/cdp/script.go
package cdp

import (
	_ "embed"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/duckduckgo/shared-web-tests/internal/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed find_element.js
var findElementScript string

// scriptOptions carries the retry budget into the page.
type scriptOptions struct {
	MaxAttempts int   `json:"maxAttempts"`
	BaseUnitMs  int64 `json:"baseUnitMs"`
	CapMs       int64 `json:"capMs"`
}

// buildInvocation returns an expression that calls the embedded script with
// JSON-encoded arguments.
func buildInvocation(using, value string, policy retry.Policy) string {
	opts := scriptOptions{
		MaxAttempts: policy.MaxAttempts,
		BaseUnitMs:  policy.BaseUnit.Milliseconds(),
		CapMs:       policy.Cap.Milliseconds(),
	}
	return fmt.Sprintf("(%s)(%s, %s, %s)", findElementScript, jsonEncode(using), jsonEncode(value), jsonEncode(opts))
}

func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
