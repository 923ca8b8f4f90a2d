// Package rpcclient is the JSON-RPC 2.0 caller every other component uses to
// talk to EVM nodes. It implements the base spec's exact retry/backoff
// formula (§4.1), per-endpoint circuit breaking, ordered fallback across
// endpoints, chunked batching, and bounded-concurrency fan-out.
//
// Retry scheduling is driven by github.com/cenkalti/backoff/v4, with a
// custom backoff.BackOff implementing the spec's precise delay formula
// instead of the library's default exponential curve — the library
// supplies the retry *loop* (including context cancellation and a max
// attempts ceiling), this package supplies the *timing*. Per-endpoint
// circuit breaking uses github.com/sony/gobreaker: an endpoint that keeps
// failing opens its breaker and is skipped by later requests without
// burning a fresh retry budget against it every time. Concurrent fan-out
// uses golang.org/x/sync/errgroup to bound parallelism.
package rpcclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/evmsentry/pers/pkgerr"
	"github.com/evmsentry/pers/telemetry"
)

const (
	maxAttempts          = 7
	maxBatchChunk        = 50
	maxConcurrency       = 10
	breakerTripThreshold = 5 // consecutive endpoint-level failures before opening
)

var rateLimitPattern = regexp.MustCompile(`(?i)rate limit`)

// Request is one JSON-RPC call, used by BatchCall and ConcurrentCalls.
type Request struct {
	Method string
	Params []interface{}
}

// Result is the outcome of one Request within a batch or concurrent
// dispatch: errors are per-item and never fail the whole set.
type Result struct {
	Value json.RawMessage
	Err   error
}

type jsonrpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonrpcError   `json:"error"`
	ID      int             `json:"id"`
}

// Client is a reference-counted handle around a shared *http.Client, cheap
// to pass by value of its pointer across goroutines — mirroring the
// teacher's preference for a process-wide, shared connection pool rather
// than one client per call.
type Client struct {
	httpClient *http.Client
	endpoints  []string
	appName    string
	version    string

	// newBackOff builds the per-attempt delay schedule; overridden in tests
	// to avoid real multi-second sleeps while exercising the same retry
	// and fallback control flow.
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New constructs a Client against an ordered list of endpoints (first is
// primary, the rest are fallbacks tried in order).
func New(endpoints []string, appName, version string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoints:  endpoints,
		appName:    appName,
		version:    version,
		newBackOff: func() backoff.BackOff { return &specBackOff{} },
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *Client) breakerFor(endpoint string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[endpoint]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        MaskURL(endpoint),
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripThreshold
		},
	})
	c.breakers[endpoint] = b
	return b
}

// Call performs a single JSON-RPC 2.0 request, retrying against the primary
// endpoint per the spec's backoff formula, then against each fallback
// endpoint in order if the primary is exhausted or its breaker is open.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if len(c.endpoints) == 0 {
		return nil, pkgerr.New(pkgerr.CodeRPCNoEndpoints, "no RPC endpoints configured")
	}

	var lastErr error
	for _, endpoint := range c.endpoints {
		breaker := c.breakerFor(endpoint)
		result, err := breaker.Execute(func() (interface{}, error) {
			return c.callWithRetry(ctx, endpoint, method, params)
		})
		if err == nil {
			return result.(json.RawMessage), nil
		}
		lastErr = err
		log.Warn("rpc endpoint failed, trying fallback", "endpoint", MaskURL(endpoint), "method", method, "err", err)
	}
	return nil, pkgerr.Wrap(pkgerr.CodeRPCConnectionFailed, "all endpoints exhausted", lastErr)
}

// callWithRetry drives up to maxAttempts attempts against a single endpoint
// using the spec-exact backoff schedule.
func (c *Client) callWithRetry(ctx context.Context, endpoint, method string, params []interface{}) (json.RawMessage, error) {
	start := time.Now()
	bo := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), maxAttempts-1), ctx)

	var result json.RawMessage
	attempt := 0
	op := func() error {
		if attempt > 0 {
			telemetry.RPCRetriesTotal.Inc()
		}
		attempt++
		raw, err := c.doRequest(ctx, endpoint, jsonrpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
		if err != nil {
			if isRetryableErr(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = raw
		return nil
	}

	err := backoff.Retry(op, bo)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	telemetry.RPCRequestsTotal.WithLabelValues(method, outcome).Inc()
	telemetry.RPCLatencySeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isRetryableErr(err error) bool {
	if pkgerr.IsRetryable(err) {
		return true
	}
	var e *pkgerr.Error
	if asErr, ok := err.(*pkgerr.Error); ok {
		e = asErr
		if e.Code == pkgerr.CodeRPCError && rateLimitPattern.MatchString(e.Message) {
			return true
		}
	}
	return false
}

// doRequest performs exactly one HTTP round trip and classifies the result
// into a retryable/non-retryable pkgerr.Error.
func (c *Client) doRequest(ctx context.Context, endpoint string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCInvalidResponse, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCConnectionFailed, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", fmt.Sprintf("%s/%s", c.appName, c.version))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCConnectionFailed, "transport error calling "+MaskURL(endpoint), err)
	}
	defer resp.Body.Close()

	reader, err := decompressedReader(resp)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCInvalidResponse, "gzip decode", err)
	}

	respBody, err := io.ReadAll(io.LimitReader(reader, 10<<20))
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCInvalidResponse, "read response body", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, pkgerr.New(pkgerr.CodeRPCRateLimited, "HTTP 429 from "+MaskURL(endpoint))
	}
	if resp.StatusCode >= 500 {
		return nil, pkgerr.New(pkgerr.CodeRPCConnectionFailed, fmt.Sprintf("HTTP %d from %s", resp.StatusCode, MaskURL(endpoint)))
	}

	var rpcResp jsonrpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCInvalidResponse, "unmarshal JSON-RPC envelope", err)
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Code == -32005 {
			return nil, pkgerr.New(pkgerr.CodeRPCRateLimited, rpcResp.Error.Message)
		}
		return nil, pkgerr.New(pkgerr.CodeRPCError, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func decompressedReader(resp *http.Response) (io.Reader, error) {
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return gzip.NewReader(resp.Body)
	}
	return resp.Body, nil
}

// BatchCall splits requests into chunks of at most 50 and dispatches each
// chunk as a JSON-RPC batch array. The original_source Rust implementation
// does not assume providers preserve request order within a batch response,
// so results are re-correlated by the echoed `id` field rather than by
// positional zip.
func (c *Client) BatchCall(ctx context.Context, requests []Request) ([]Result, error) {
	if len(c.endpoints) == 0 {
		return nil, pkgerr.New(pkgerr.CodeRPCNoEndpoints, "no RPC endpoints configured")
	}

	results := make([]Result, len(requests))
	for chunkStart := 0; chunkStart < len(requests); chunkStart += maxBatchChunk {
		chunkEnd := chunkStart + maxBatchChunk
		if chunkEnd > len(requests) {
			chunkEnd = len(requests)
		}
		chunk := requests[chunkStart:chunkEnd]
		chunkResults, err := c.dispatchBatchChunk(ctx, chunk)
		if err != nil {
			for i := range chunk {
				results[chunkStart+i] = Result{Err: err}
			}
			continue
		}
		for i, r := range chunkResults {
			results[chunkStart+i] = r
		}
	}
	return results, nil
}

func (c *Client) dispatchBatchChunk(ctx context.Context, chunk []Request) ([]Result, error) {
	payload := make([]jsonrpcRequest, len(chunk))
	for i, req := range chunk {
		payload[i] = jsonrpcRequest{JSONRPC: "2.0", Method: req.Method, Params: req.Params, ID: i + 1}
	}

	var lastErr error
	for _, endpoint := range c.endpoints {
		breaker := c.breakerFor(endpoint)
		raw, err := breaker.Execute(func() (interface{}, error) {
			return c.doBatchRequest(ctx, endpoint, payload)
		})
		if err == nil {
			return correlateByID(raw.([]jsonrpcResponse), len(chunk)), nil
		}
		lastErr = err
	}
	return nil, pkgerr.Wrap(pkgerr.CodeRPCConnectionFailed, "batch request failed on all endpoints", lastErr)
}

func (c *Client) doBatchRequest(ctx context.Context, endpoint string, payload []jsonrpcRequest) ([]jsonrpcResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCInvalidResponse, "marshal batch", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCConnectionFailed, "build batch request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", fmt.Sprintf("%s/%s", c.appName, c.version))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCConnectionFailed, "transport error", err)
	}
	defer resp.Body.Close()

	reader, err := decompressedReader(resp)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCInvalidResponse, "gzip decode", err)
	}
	respBody, err := io.ReadAll(io.LimitReader(reader, 20<<20))
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCInvalidResponse, "read batch response", err)
	}

	var parsed []jsonrpcResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCInvalidResponse, "unmarshal batch response", err)
	}
	return parsed, nil
}

func correlateByID(responses []jsonrpcResponse, count int) []Result {
	byID := make(map[int]jsonrpcResponse, len(responses))
	for _, r := range responses {
		byID[r.ID] = r
	}
	results := make([]Result, count)
	for i := 0; i < count; i++ {
		resp, ok := byID[i+1]
		if !ok {
			results[i] = Result{Err: pkgerr.New(pkgerr.CodeRPCInvalidResponse, "missing batch item in response")}
			continue
		}
		if resp.Error != nil {
			results[i] = Result{Err: pkgerr.New(pkgerr.CodeRPCError, resp.Error.Message)}
			continue
		}
		results[i] = Result{Value: resp.Result}
	}
	return results
}

// ConcurrentCalls fans out independent Call()s, bounding concurrency at
// maxConcurrency via errgroup, and collects per-item results without
// failing the whole set on a single item's error.
func (c *Client) ConcurrentCalls(ctx context.Context, requests []Request) []Result {
	results := make([]Result, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			val, err := c.Call(gctx, req.Method, req.Params)
			results[i] = Result{Value: val, Err: err}
			return nil // per-item errors never fail the group
		})
	}
	_ = g.Wait()
	return results
}

// MaskURL redacts any API key embedded in a managed endpoint's path so that
// it is safe to log. Managed URLs look like
// https://{subdomain}.{vendor}.com/v2/{api_key}; everything after the last
// "/v2/" segment is replaced with "***".
func MaskURL(rawURL string) string {
	const marker = "/v2/"
	idx := strings.LastIndex(rawURL, marker)
	if idx == -1 {
		return rawURL
	}
	return rawURL[:idx+len(marker)] + "***"
}

// specBackOff implements backoff.BackOff with the base spec's exact delay
// formula: attempt k (k>=2) sleeps min(1000*2^(k-2), 64000) ms, jittered
// uniformly by ±20% and floored at 100ms.
type specBackOff struct {
	n int
}

func (b *specBackOff) NextBackOff() time.Duration {
	b.n++
	k := b.n + 1 // first NextBackOff() call corresponds to attempt k=2
	capped := math.Min(1000*math.Pow(2, float64(k-2)), 64000)
	jitter := 0.8 + rand.Float64()*0.4 // uniform in [0.8, 1.2]
	delayMS := capped * jitter
	if delayMS < 100 {
		delayMS = 100
	}
	return time.Duration(delayMS) * time.Millisecond
}

func (b *specBackOff) Reset() { b.n = 0 }
