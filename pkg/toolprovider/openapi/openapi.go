// Package openapi adapts one operation of an OpenAPI document into a
// single mcp.ToolCallback: it parses the spec with kin-openapi, derives a
// JSON Schema for the operation's parameters/request body, and proxies
// tools/call arguments into an HTTP request against the configured base
// URL. A prior design converted an entire document into many tools for
// one upstream agent; this generalizes that down to the one operation a
// single ToolConfig entry names.
package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/tailscale/hujson"

	"github.com/gridctl/mcpserverd/pkg/config"
	"github.com/gridctl/mcpserverd/pkg/logging"
	"github.com/gridctl/mcpserverd/pkg/mcp"
)

// defaultTimeout bounds an individual HTTP call to the upstream API.
const defaultTimeout = 30 * time.Second

// maxResponseBodySize caps how much of the HTTP response body is read back
// into the tool's Response message, guarding against a runaway upstream.
const maxResponseBodySize = 10 * 1024 * 1024

var pathParamPattern = regexp.MustCompile(`\{([^}]+)\}`)

// AuthConfig describes how requests against the upstream API are
// authenticated, parsed from an optional HuJSON sidecar file beside the
// OpenAPI spec (so ad-hoc bearer tokens never need to live in the tool
// manifest itself).
type AuthConfig struct {
	Type   string `json:"type,omitempty"` // "bearer" | "header"
	Token  string `json:"token,omitempty"`
	Header string `json:"header,omitempty"`
	Value  string `json:"value,omitempty"`
}

// operation holds the parsed OpenAPI operation details needed to build an
// HTTP request at call time.
type operation struct {
	method       string
	path         string
	pathParams   []string
	queryParams  map[string]*openapi3.Parameter
	headerParams map[string]*openapi3.Parameter
	hasBody      bool
}

// Tool wires one OpenAPI operation as an mcp.ToolCallback.
type Tool struct {
	baseURL    string
	op         *operation
	auth       AuthConfig
	httpClient *http.Client
	server     *mcp.Server
	logger     *slog.Logger

	mu sync.Mutex
}

// New parses cfg.OpenAPISpec, locates the operation named by
// cfg.Operation, and returns a Tool ready to be registered. An AuthConfig
// sidecar (HuJSON) is read, if present, from the spec path with its
// extension replaced by ".auth.hujson" (see loadAuthSidecar).
func New(cfg config.ToolConfig) (*Tool, error) {
	if cfg.OpenAPISpec == "" {
		return nil, fmt.Errorf("openapi tool %q: openapi_spec is required", cfg.Name)
	}
	if cfg.Operation == "" {
		return nil, fmt.Errorf("openapi tool %q: operation_id is required", cfg.Name)
	}

	doc, err := loadSpec(cfg.OpenAPISpec)
	if err != nil {
		return nil, fmt.Errorf("loading OpenAPI spec: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validating OpenAPI spec: %w", err)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" && len(doc.Servers) > 0 {
		baseURL = doc.Servers[0].URL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("openapi tool %q: no base URL (set base_url or add a servers entry to the spec)", cfg.Name)
	}

	op, found := findOperation(doc, cfg.Operation)
	if !found {
		return nil, fmt.Errorf("openapi tool %q: operation %q not found in spec", cfg.Name, cfg.Operation)
	}

	auth, err := loadAuthSidecar(cfg.OpenAPISpec)
	if err != nil {
		return nil, fmt.Errorf("loading auth sidecar: %w", err)
	}

	return &Tool{
		baseURL:    baseURL,
		op:         op,
		auth:       auth,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logging.NewDiscardLogger(),
	}, nil
}

// SetServer binds the *mcp.Server the Callback reports completion to.
func (t *Tool) SetServer(server *mcp.Server) {
	t.server = server
}

// SetLogger overrides the default discard logger.
func (t *Tool) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// Record builds the operation's input schema and returns the mcp.ToolRecord
// to register with AddTool.
func (t *Tool) Record(cfg config.ToolConfig) mcp.ToolRecord {
	schema, _ := json.Marshal(t.op.inputSchema())
	return mcp.ToolRecord{
		Name:        cfg.Name,
		Description: cfg.Description,
		InputSchema: schema,
		Callback:    t.Callback,
	}
}

// Callback implements mcp.ToolCallback, proxying the call as a single HTTP
// request and submitting the response body as the tool's reply.
func (t *Tool) Callback(ctx context.Context, event mcp.ToolEvent, argumentsJSON []byte, token mcp.ExecutionToken) error {
	if event != mcp.EventInvoke {
		return nil
	}
	if t.server == nil {
		return fmt.Errorf("openapi tool: no server bound")
	}

	var args map[string]any
	if len(argumentsJSON) > 0 {
		if err := json.Unmarshal(argumentsJSON, &args); err != nil {
			return t.submitError(ctx, token, fmt.Sprintf("invalid arguments: %v", err))
		}
	}
	t.logger.Debug("calling operation", "base_url", t.baseURL, "arguments", string(logging.RedactArguments(argumentsJSON)))

	for _, name := range t.op.pathParams {
		if _, ok := args[name]; !ok {
			return t.submitError(ctx, token, fmt.Sprintf("missing required path parameter: %s", name))
		}
	}

	body, status, err := t.execute(ctx, args)
	if err != nil {
		return t.submitError(ctx, token, err.Error())
	}

	isErr := status >= 400
	text := body
	if isErr {
		text = fmt.Sprintf("HTTP %d: %s", status, body)
	}

	return t.server.SubmitToolMessage(ctx, token, mcp.ToolMessage{
		Type:    mcp.ToolMessageResponse,
		Data:    []byte(text),
		IsError: isErr,
	})
}

func (t *Tool) submitError(ctx context.Context, token mcp.ExecutionToken, msg string) error {
	return t.server.SubmitToolMessage(ctx, token, mcp.ToolMessage{
		Type:    mcp.ToolMessageResponse,
		Data:    []byte(msg),
		IsError: true,
	})
}

func (t *Tool) execute(ctx context.Context, args map[string]any) (string, int, error) {
	path := t.op.path
	for _, name := range t.op.pathParams {
		if val, ok := args[name]; ok {
			path = strings.Replace(path, "{"+name+"}", url.PathEscape(fmt.Sprintf("%v", val)), 1)
		}
	}
	if strings.Contains(path, "{") {
		return "", 0, fmt.Errorf("unsubstituted path parameters in: %s", path)
	}

	query := url.Values{}
	for name := range t.op.queryParams {
		if val, ok := args[name]; ok {
			query.Set(name, fmt.Sprintf("%v", val))
		}
	}

	fullURL := strings.TrimSuffix(t.baseURL, "/") + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if t.op.hasBody {
		if body, ok := args["body"]; ok {
			bodyBytes, err := json.Marshal(body)
			if err != nil {
				return "", 0, fmt.Errorf("marshaling request body: %w", err)
			}
			bodyReader = bytes.NewReader(bodyBytes)
		}
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(t.op.method), fullURL, bodyReader)
	if err != nil {
		return "", 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name := range t.op.headerParams {
		if val, ok := args[name]; ok {
			req.Header.Set(name, fmt.Sprintf("%v", val))
		}
	}
	t.applyAuth(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return string(respBody), resp.StatusCode, nil
}

func (t *Tool) applyAuth(req *http.Request) {
	switch t.auth.Type {
	case "bearer":
		if t.auth.Token != "" {
			req.Header.Set("Authorization", "Bearer "+t.auth.Token)
		}
	case "header":
		if t.auth.Header != "" && t.auth.Value != "" {
			req.Header.Set(t.auth.Header, t.auth.Value)
		}
	}
}

func (op *operation) inputSchema() map[string]any {
	properties := make(map[string]any)
	var required []string

	for name, p := range op.queryParams {
		properties[name] = parameterToProperty(p)
	}
	for name, p := range op.headerParams {
		properties[name] = parameterToProperty(p)
	}
	if op.hasBody {
		properties["body"] = map[string]any{"type": "object"}
	}
	for _, name := range op.pathParams {
		properties[name] = map[string]any{"type": "string"}
		required = append(required, name)
	}

	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func parameterToProperty(param *openapi3.Parameter) map[string]any {
	prop := make(map[string]any)
	if param.Schema != nil && param.Schema.Value != nil {
		schema := param.Schema.Value
		if schema.Type != nil && len(*schema.Type) > 0 {
			prop["type"] = (*schema.Type)[0]
		}
		if schema.Description != "" {
			prop["description"] = schema.Description
		} else if param.Description != "" {
			prop["description"] = param.Description
		}
		if len(schema.Enum) > 0 {
			prop["enum"] = schema.Enum
		}
	} else if param.Description != "" {
		prop["description"] = param.Description
		prop["type"] = "string"
	}
	return prop
}

func loadSpec(path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("parsing spec URL: %w", err)
		}
		return loader.LoadFromURI(u)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec file: %w", err)
	}
	return loader.LoadFromData(data)
}

// loadAuthSidecar reads an optional HuJSON auth config living alongside
// the spec file at <spec-without-ext>.auth.hujson. A missing sidecar is
// not an error — the tool simply sends unauthenticated requests.
func loadAuthSidecar(specPath string) (AuthConfig, error) {
	sidecarPath := strings.TrimSuffix(specPath, filepathExt(specPath)) + ".auth.hujson"
	raw, err := os.ReadFile(sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return AuthConfig{}, nil
		}
		return AuthConfig{}, err
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return AuthConfig{}, fmt.Errorf("parsing %s: %w", sidecarPath, err)
	}

	var auth AuthConfig
	if err := json.Unmarshal(standardized, &auth); err != nil {
		return AuthConfig{}, fmt.Errorf("decoding %s: %w", sidecarPath, err)
	}
	return auth, nil
}

func filepathExt(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[idx:]
}

func findOperation(doc *openapi3.T, operationID string) (*operation, bool) {
	if doc.Paths == nil {
		return nil, false
	}
	for path, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for method, op := range item.Operations() {
			if op == nil || op.OperationID != operationID {
				continue
			}
			return buildOperation(method, path, op), true
		}
	}
	return nil, false
}

func buildOperation(method, path string, op *openapi3.Operation) *operation {
	result := &operation{
		method:       method,
		path:         path,
		pathParams:   extractPathParams(path),
		queryParams:  make(map[string]*openapi3.Parameter),
		headerParams: make(map[string]*openapi3.Parameter),
	}
	for _, paramRef := range op.Parameters {
		if paramRef == nil || paramRef.Value == nil {
			continue
		}
		param := paramRef.Value
		switch param.In {
		case "query":
			result.queryParams[param.Name] = param
		case "header":
			result.headerParams[param.Name] = param
		}
	}
	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if _, ok := op.RequestBody.Value.Content["application/json"]; ok {
			result.hasBody = true
		}
	}
	return result
}

func extractPathParams(path string) []string {
	matches := pathParamPattern.FindAllStringSubmatch(path, -1)
	params := make([]string, 0, len(matches))
	for _, m := range matches {
		params = append(params, m[1])
	}
	return params
}
