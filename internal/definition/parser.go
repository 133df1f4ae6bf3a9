// Package definition loads OpenAPI definition files and their customization
// sidecars into the normalized model consumed by enrichment.
package definition

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/apifoundry/apibridge/internal/common"
)

// httpMethods is the set of operations extracted from each path item.
var httpMethods = []string{"GET", "PUT", "POST", "DELETE", "OPTIONS", "HEAD", "PATCH"}

// ParsedDefinition is the normalized, fully reference-resolved form of one
// OpenAPI document. Immutable once produced.
type ParsedDefinition struct {
	Servers  []string
	Paths    []ParsedPath
	Security []SecurityScheme
	Hash     string // SHA-256 of the raw source bytes
}

// ParsedPath is one (path, HTTP method) operation.
type ParsedPath struct {
	Path        string
	Method      string
	OperationID string
	Summary     string
	Description string
	Parameters  []ParsedParameter
	RequestBody *ParsedRequestBody
	// Responses carries status -> description only; response schemas are
	// not interpreted by the bridge.
	Responses map[string]string
	// Security is the per-operation security requirement override, if any.
	Security []map[string][]string
}

// ParsedParameter is one path/query/header/cookie parameter.
type ParsedParameter struct {
	Name        string
	In          string // path, query, header, cookie
	Required    bool
	Description string
	Schema      *openapi3.SchemaRef
	Style       string
	Explode     *bool
}

// ParsedRequestBody maps media type -> schema for an operation body.
type ParsedRequestBody struct {
	Required    bool
	Description string
	Content     map[string]*openapi3.SchemaRef
}

// SecurityScheme is a declared security scheme with its type-specific fields.
type SecurityScheme struct {
	Key              string   `json:"key"`
	Type             string   `json:"type"` // http, apiKey, oauth2, openIdConnect
	Scheme           string   `json:"scheme,omitempty"`
	Name             string   `json:"name,omitempty"`
	In               string   `json:"in,omitempty"`
	Flows            []string `json:"flows,omitempty"`
	OpenIDConnectURL string   `json:"openIdConnectUrl,omitempty"`
}

// InvalidDefinitionError reports a definition file that could not be read,
// parsed, or reference-resolved. Fatal to that file, non-fatal to the registry.
type InvalidDefinitionError struct {
	Path string
	Err  error
}

func (e *InvalidDefinitionError) Error() string {
	return fmt.Sprintf("invalid definition %s: %v", e.Path, e.Err)
}

func (e *InvalidDefinitionError) Unwrap() error { return e.Err }

// Parse loads one OpenAPI 3.x document (JSON or YAML), resolves all internal
// and external references, and extracts the normalized model. Schema
// validation failures are surfaced as warnings only; the definition is still
// accepted.
func Parse(path string, logger *common.Logger) (*ParsedDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &InvalidDefinitionError{Path: path, Err: err}
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, &InvalidDefinitionError{Path: path, Err: err}
	}

	// Advisory only: a document that resolves but fails validation still
	// compiles, with a surfaced warning.
	if err := doc.Validate(loader.Context); err != nil {
		logger.Warn().Str("path", path).Str("error", err.Error()).Msg("definition failed schema validation, accepting anyway")
	}

	sum := sha256.Sum256(raw)

	parsed := &ParsedDefinition{
		Servers:  extractServers(doc.Servers),
		Security: extractSecuritySchemes(doc),
		Hash:     hex.EncodeToString(sum[:]),
	}

	if doc.Paths == nil {
		return parsed, nil
	}

	for _, pathKey := range doc.Paths.InMatchingOrder() {
		item := doc.Paths.Find(pathKey)
		if item == nil {
			continue
		}
		for _, method := range httpMethods {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			parsed.Paths = append(parsed.Paths, buildParsedPath(pathKey, method, item, op))
		}
	}

	return parsed, nil
}

// extractServers returns the declared server URLs with any templated server
// variables substituted by their declared defaults.
func extractServers(servers openapi3.Servers) []string {
	var urls []string
	for _, srv := range servers {
		if srv == nil || srv.URL == "" {
			continue
		}
		u := srv.URL
		for name, variable := range srv.Variables {
			if variable == nil {
				continue
			}
			u = strings.ReplaceAll(u, "{"+name+"}", variable.Default)
		}
		urls = append(urls, u)
	}
	return urls
}

// extractSecuritySchemes flattens the declared component security schemes.
func extractSecuritySchemes(doc *openapi3.T) []SecurityScheme {
	if doc.Components == nil {
		return nil
	}
	var schemes []SecurityScheme
	for _, key := range sortedKeys(doc.Components.SecuritySchemes) {
		ref := doc.Components.SecuritySchemes[key]
		if ref == nil || ref.Value == nil {
			continue
		}
		ss := ref.Value
		scheme := SecurityScheme{
			Key:              key,
			Type:             ss.Type,
			Scheme:           ss.Scheme,
			Name:             ss.Name,
			In:               ss.In,
			OpenIDConnectURL: ss.OpenIdConnectUrl,
		}
		if ss.Flows != nil {
			if ss.Flows.AuthorizationCode != nil {
				scheme.Flows = append(scheme.Flows, "authorizationCode")
			}
			if ss.Flows.ClientCredentials != nil {
				scheme.Flows = append(scheme.Flows, "clientCredentials")
			}
			if ss.Flows.Implicit != nil {
				scheme.Flows = append(scheme.Flows, "implicit")
			}
			if ss.Flows.Password != nil {
				scheme.Flows = append(scheme.Flows, "password")
			}
		}
		schemes = append(schemes, scheme)
	}
	return schemes
}

// buildParsedPath combines path-level and operation-level data into one
// ParsedPath. Operation-level parameters override path-level parameters with
// the same name and location.
func buildParsedPath(pathKey, method string, item *openapi3.PathItem, op *openapi3.Operation) ParsedPath {
	pp := ParsedPath{
		Path:        pathKey,
		Method:      method,
		OperationID: op.OperationID,
		Summary:     op.Summary,
		Description: op.Description,
		Parameters:  mergeParameters(item.Parameters, op.Parameters),
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		rb := op.RequestBody.Value
		body := &ParsedRequestBody{
			Required:    rb.Required,
			Description: rb.Description,
			Content:     map[string]*openapi3.SchemaRef{},
		}
		for mediaType, mt := range rb.Content {
			if mt == nil {
				continue
			}
			body.Content[mediaType] = mt.Schema
		}
		pp.RequestBody = body
	}

	if op.Responses != nil {
		pp.Responses = map[string]string{}
		for status, ref := range op.Responses.Map() {
			if ref == nil || ref.Value == nil || ref.Value.Description == nil {
				continue
			}
			pp.Responses[status] = *ref.Value.Description
		}
	}

	if op.Security != nil {
		for _, requirement := range *op.Security {
			entry := map[string][]string{}
			for scheme, scopes := range requirement {
				entry[scheme] = scopes
			}
			pp.Security = append(pp.Security, entry)
		}
	}

	return pp
}

// mergeParameters merges path-level and operation-level parameters.
// Operation-level parameters win on the same name+location.
func mergeParameters(pathParams, opParams openapi3.Parameters) []ParsedParameter {
	overridden := map[string]bool{}
	for _, ref := range opParams {
		if ref != nil && ref.Value != nil {
			overridden[ref.Value.In+":"+ref.Value.Name] = true
		}
	}

	var merged []ParsedParameter
	for _, ref := range pathParams {
		if ref == nil || ref.Value == nil {
			continue
		}
		if overridden[ref.Value.In+":"+ref.Value.Name] {
			continue
		}
		merged = append(merged, toParsedParameter(ref.Value))
	}
	for _, ref := range opParams {
		if ref == nil || ref.Value == nil {
			continue
		}
		merged = append(merged, toParsedParameter(ref.Value))
	}
	return merged
}

func toParsedParameter(p *openapi3.Parameter) ParsedParameter {
	return ParsedParameter{
		Name:        p.Name,
		In:          p.In,
		Required:    p.Required,
		Description: p.Description,
		Schema:      p.Schema,
		Style:       p.Style,
		Explode:     p.Explode,
	}
}

// sortedKeys returns map keys in sorted order for deterministic extraction.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
