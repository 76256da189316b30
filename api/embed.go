// Package api holds the OpenAPI description of Pat's HTTP surface, embedded
// so the server can serve it at /openapi.yaml.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPISpec []byte
