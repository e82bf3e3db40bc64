// Package bitrix implements a typed, retrying, paginating client for the
// Bitrix24 REST API reached through a per-tenant inbound webhook URL.
package bitrix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
	"github.com/brightpulse/bitrix-warehouse/pkg/logging"
	"github.com/brightpulse/bitrix-warehouse/pkg/retry"
)

// Record is a single entity row as returned by Bitrix, keys as-is.
type Record = map[string]any

// Client calls the Bitrix24 REST API. All calls are POSTs with URL-encoded
// bodies against <webhook_base>/<method>.json.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   *retry.Config
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (tests use this).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryConfig overrides the rate-limit retry policy (tests use this).
func WithRetryConfig(cfg *retry.Config) Option {
	return func(c *Client) { c.retryCfg = cfg }
}

// NewClient creates a Bitrix24 client for the given webhook base URL.
func NewClient(webhookURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(webhookURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retryCfg:   retry.RateLimitConfig(),
		logger:     logger.Named("bitrix"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the standard Bitrix response shape. Result carries the
// payload on success; Error/ErrorDescription are set on failure. List
// methods add the pagination fields.
type envelope struct {
	Result           json.RawMessage `json:"result"`
	Total            int             `json:"total"`
	Next             *int            `json:"next"`
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// errorCode extracts the error code whether Bitrix returned a bare string
// or a nested object.
func (e *envelope) errorCode() string {
	if len(e.Error) == 0 || string(e.Error) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Error, &s); err == nil {
		return s
	}
	var obj struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(e.Error, &obj); err == nil {
		if obj.ErrorDescription != "" && e.ErrorDescription == "" {
			e.ErrorDescription = obj.ErrorDescription
		}
		return obj.Error
	}
	return string(e.Error)
}

// Call invokes a REST method and returns the raw result. Rate-limited
// calls are retried with capped exponential backoff; all other errors
// short-circuit.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	env, err := c.callEnvelope(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return env.Result, nil
}

func (c *Client) callEnvelope(ctx context.Context, method string, params map[string]any) (*envelope, error) {
	return retry.DoWithResult(ctx, c.retryCfg, apperrors.IsRateLimit, func() (*envelope, error) {
		return c.callOnce(ctx, method, params)
	})
}

func (c *Client) callOnce(ctx context.Context, method string, params map[string]any) (*envelope, error) {
	endpoint := c.baseURL + "/" + method + ".json"
	body := encodeParams(params).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, &apperrors.APIError{Code: "request_build", Description: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Server-side time limits sometimes surface as transport errors.
		if strings.Contains(err.Error(), "OPERATION_TIME_LIMIT") {
			return nil, &apperrors.OperationTimeLimitError{Message: logging.SanitizeError(err)}
		}
		return nil, &apperrors.APIError{Code: "transport", Description: logging.SanitizeError(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.APIError{Code: "read_body", Description: err.Error()}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &apperrors.APIError{
			Code:        "decode",
			Description: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(data), 200)),
		}
	}

	if apiErr := classifyError(&env); apiErr != nil {
		c.logger.Debug("bitrix call failed",
			zap.String("method", method),
			zap.Error(apiErr))
		return nil, apiErr
	}

	return &env, nil
}

// classifyError maps the response error member onto the error taxonomy.
func classifyError(env *envelope) error {
	code := env.errorCode()
	if code == "" {
		return nil
	}
	upper := strings.ToUpper(code)
	switch {
	case strings.Contains(upper, "OPERATION_TIME_LIMIT"):
		return &apperrors.OperationTimeLimitError{Message: env.ErrorDescription}
	case strings.Contains(upper, "QUERY_LIMIT_EXCEEDED"):
		return &apperrors.RateLimitError{Message: env.ErrorDescription}
	case strings.Contains(strings.ToLower(code), "expired_token"),
		strings.Contains(strings.ToLower(code), "invalid_token"):
		return &apperrors.AuthenticationError{Message: env.ErrorDescription}
	default:
		return &apperrors.APIError{Code: code, Description: env.ErrorDescription}
	}
}

// GetAll pages through a list method until the server reports no more
// pages, returning the concatenated records. It never silently truncates:
// a failed page fails the whole call.
func (c *Client) GetAll(ctx context.Context, method string, params map[string]any) ([]Record, error) {
	var out []Record
	start := 0

	for {
		page := make(map[string]any, len(params)+1)
		for k, v := range params {
			page[k] = v
		}
		page["start"] = strconv.Itoa(start)

		env, err := c.callEnvelope(ctx, method, page)
		if err != nil {
			return nil, err
		}

		records, err := unwrapRecords(env.Result)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)

		if env.Next == nil {
			return out, nil
		}
		start = *env.Next
	}
}

// unwrapRecords flattens the result payload into a list of records. Bitrix
// list endpoints variously return a flat list, a dict with "items" or
// "tasks", or a list of such batch dicts.
func unwrapRecords(raw json.RawMessage) ([]Record, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &apperrors.APIError{Code: "decode", Description: err.Error()}
	}
	return flatten(decoded), nil
}

func flatten(v any) []Record {
	switch val := v.(type) {
	case []any:
		var out []Record
		for _, item := range val {
			out = append(out, flatten(item)...)
		}
		return out
	case map[string]any:
		if items, ok := val["items"]; ok {
			return flatten(items)
		}
		if tasks, ok := val["tasks"]; ok {
			return flatten(tasks)
		}
		return []Record{val}
	default:
		return nil
	}
}

// encodeParams flattens nested params into Bitrix's bracketed form fields:
// filter[>ID]=0, select[0]=*, order[ID]=ASC.
func encodeParams(params map[string]any) url.Values {
	vals := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		encodeValue(vals, k, params[k])
	}
	return vals
}

func encodeValue(vals url.Values, key string, v any) {
	switch val := v.(type) {
	case map[string]any:
		subKeys := make([]string, 0, len(val))
		for k := range val {
			subKeys = append(subKeys, k)
		}
		sort.Strings(subKeys)
		for _, k := range subKeys {
			encodeValue(vals, key+"["+k+"]", val[k])
		}
	case []string:
		for i, item := range val {
			vals.Set(key+"["+strconv.Itoa(i)+"]", item)
		}
	case []any:
		for i, item := range val {
			encodeValue(vals, key+"["+strconv.Itoa(i)+"]", item)
		}
	case nil:
		// skip
	default:
		vals.Set(key, scalarString(val))
	}
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		if val {
			return "Y"
		}
		return "N"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
