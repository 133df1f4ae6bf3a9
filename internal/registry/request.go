package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/apifoundry/apibridge/internal/enrich"
)

// Request is a reconstructed HTTP request, ready for authentication and
// execution. Query stays structured until send so authentication can still
// mutate it.
type Request struct {
	Method      string
	URL         string // base URL + substituted path, no query string
	Query       url.Values
	Headers     http.Header
	Body        []byte
	ContentType string
}

// FullURL returns the request URL with the encoded query string appended.
func (r *Request) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	return r.URL + "?" + r.Query.Encode()
}

// BuildRequest inverts a tool's parameter mapping over the merged arguments:
// path placeholders are substituted with URL-encoded values, query fields
// collected (list values as repeated keys, or comma-joined for fields
// declared with explode: false), header fields set, cookie fields joined
// into a single Cookie header, and remaining fields gathered into the JSON
// body when the operation declared a structured one. A literal "body"
// argument with no structured body schema is sent verbatim.
func BuildRequest(tool *enrich.ToolDefinition, merged map[string]any) (*Request, error) {
	mapping := tool.Mapping

	req := &Request{
		Method:  strings.ToUpper(tool.Method),
		Query:   url.Values{},
		Headers: http.Header{},
	}

	consumed := map[string]bool{}

	path := tool.Path
	for _, name := range mapping.Path {
		value, ok := merged[name]
		if !ok || value == nil {
			continue
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(fmt.Sprint(value)))
		consumed[name] = true
	}

	joined := map[string]bool{}
	for _, name := range mapping.JoinedQuery {
		joined[name] = true
	}
	for _, name := range mapping.Query {
		value, ok := merged[name]
		if !ok || value == nil {
			continue
		}
		if joined[name] {
			req.Query.Add(name, strings.Join(listValues(value), ","))
		} else {
			for _, item := range listValues(value) {
				req.Query.Add(name, item)
			}
		}
		consumed[name] = true
	}

	for _, name := range mapping.Header {
		value, ok := merged[name]
		if !ok || value == nil {
			continue
		}
		req.Headers.Set(name, fmt.Sprint(value))
		consumed[name] = true
	}

	var cookies []string
	for _, name := range mapping.Cookie {
		value, ok := merged[name]
		if !ok || value == nil {
			continue
		}
		cookies = append(cookies, name+"="+fmt.Sprint(value))
		consumed[name] = true
	}
	if len(cookies) > 0 {
		req.Headers.Set("Cookie", strings.Join(cookies, "; "))
	}

	switch {
	case mapping.Body != nil:
		body := map[string]any{}
		for name, value := range merged {
			if consumed[name] || value == nil {
				continue
			}
			body[name] = value
		}
		if len(body) > 0 {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, &RequestError{Err: fmt.Errorf("failed to encode request body: %w", err)}
			}
			req.Body = data
			req.ContentType = "application/json"
		}
	case merged["body"] != nil:
		data, contentType, err := rawBody(merged["body"], mapping.BodyMediaType)
		if err != nil {
			return nil, &RequestError{Err: err}
		}
		req.Body = data
		req.ContentType = contentType
	}

	base := strings.TrimRight(tool.BaseURL, "/")
	if !strings.HasPrefix(path, "/") && base != "" {
		path = "/" + path
	}
	req.URL = base + path

	return req, nil
}

// listValues flattens a possibly list-valued argument into its string items
// for repeated-key query serialization.
func listValues(value any) []string {
	switch items := value.(type) {
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return items
	default:
		return []string{fmt.Sprint(value)}
	}
}

// rawBody serializes a literal body argument, preserving strings and bytes
// verbatim for non-JSON content types.
func rawBody(value any, mediaType string) ([]byte, string, error) {
	contentType := mediaType
	if contentType == "" {
		contentType = "application/json"
	}
	switch body := value.(type) {
	case string:
		return []byte(body), contentType, nil
	case []byte:
		return body, contentType, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return data, contentType, nil
	}
}
