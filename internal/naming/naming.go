// Package naming derives stable, human-legible tool identifiers from
// OpenAPI operations.
package naming

import (
	"regexp"
	"strings"
)

var (
	pathParam = regexp.MustCompile(`\{([^{}]+)\}`)
	nonAlnum  = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// ToolName derives the tool identifier for one operation. An explicit
// operationId is used verbatim; otherwise the name is built from the HTTP
// method and the path: placeholders stripped, non-alphanumerics collapsed to
// single dashes, lowercased, prefixed with the lowercase method, with one
// "-by-<param>" suffix per stripped path parameter in path order.
// Pure and idempotent: the same inputs always yield the same name.
func ToolName(method, path, operationID string) string {
	if operationID != "" {
		return operationID
	}

	params := pathParam.FindAllStringSubmatch(path, -1)
	stripped := pathParam.ReplaceAllString(path, "")

	slug := nonAlnum.ReplaceAllString(stripped, "-")
	slug = strings.Trim(slug, "-")
	slug = strings.ToLower(slug)

	name := strings.ToLower(method)
	if slug != "" {
		name += "-" + slug
	}
	for _, p := range params {
		name += "-by-" + p[1]
	}
	return name
}

// ApplyAlias returns the alias override for a derived name, by exact match,
// or the name unchanged when no alias is configured.
func ApplyAlias(name string, aliases map[string]string) string {
	if alias, ok := aliases[name]; ok && alias != "" {
		return alias
	}
	return name
}
