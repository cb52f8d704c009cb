package resolver

import "strings"

// isHeaderText reports whether text starts a module declaration or an
// import clause.
func isHeaderText(text string) bool {
	for _, kw := range []string{"import", "module", "port module", "effect module"} {
		if text == kw || strings.HasPrefix(text, kw+" ") || strings.HasPrefix(text, kw+"\t") || strings.HasPrefix(text, kw+"\n") {
			return true
		}
	}

	return false
}
