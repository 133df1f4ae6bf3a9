// Package auth maps an authentication requirement plus a credential set onto
// concrete header, query, and cookie mutations.
package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
)

// Default apiKey placement when neither the security scheme nor the
// credentials specify one.
const (
	DefaultAPIKeyName = "X-API-Key"
	DefaultAPIKeyIn   = "header"
)

// Requirement is a resolved authentication requirement attached to a tool.
type Requirement struct {
	Type        string         `json:"type"`
	Credentials map[string]any `json:"credentials,omitempty"`
}

// Error reports unsupported or incomplete credential configuration.
// Surfaced before any network call is attempted.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "authentication failed: " + e.Reason
}

// InferType derives the authentication type from the credential shape:
// username+password is basic, token is bearer, key is apiKey. Returns ""
// when no known shape matches.
func InferType(credentials map[string]any) string {
	if stringValue(credentials, "username") != "" && stringValue(credentials, "password") != "" {
		return "basic"
	}
	if stringValue(credentials, "token") != "" {
		return "bearer"
	}
	if stringValue(credentials, "key") != "" {
		return "apiKey"
	}
	return ""
}

// Apply mutates the request headers and query parameters for the given
// requirement. Pure in effect: the same inputs always produce the same
// mutations, and nothing is touched on error.
func Apply(headers http.Header, query url.Values, req Requirement) error {
	switch req.Type {
	case "basic":
		username := stringValue(req.Credentials, "username")
		password := stringValue(req.Credentials, "password")
		if username == "" || password == "" {
			return &Error{Reason: "basic auth requires username and password"}
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+encoded)
		return nil

	case "bearer", "oauth2", "openIdConnect":
		// oauth2/openIdConnect are applied as bearer tokens; no flow is run.
		token := stringValue(req.Credentials, "token")
		if token == "" {
			return &Error{Reason: req.Type + " auth requires a token"}
		}
		headers.Set("Authorization", "Bearer "+token)
		return nil

	case "apiKey":
		key := stringValue(req.Credentials, "key")
		if key == "" {
			return &Error{Reason: "apiKey auth requires a key"}
		}
		name := stringValue(req.Credentials, "name")
		if name == "" {
			name = DefaultAPIKeyName
		}
		switch stringValue(req.Credentials, "in") {
		case "query":
			query.Set(name, key)
		case "cookie":
			appendCookie(headers, name+"="+key)
		case "header", "":
			headers.Set(name, key)
		default:
			return &Error{Reason: "apiKey auth has unsupported location " + stringValue(req.Credentials, "in")}
		}
		return nil

	default:
		return &Error{Reason: "unsupported authentication type " + req.Type}
	}
}

// appendCookie adds a cookie pair to any existing Cookie header instead of
// overwriting it.
func appendCookie(headers http.Header, pair string) {
	if existing := headers.Get("Cookie"); existing != "" {
		headers.Set("Cookie", existing+"; "+pair)
		return
	}
	headers.Set("Cookie", pair)
}

func stringValue(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
