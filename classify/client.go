package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmespath/go-jmespath"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/AltairaLabs/RelayKit/credentials"
	"github.com/AltairaLabs/RelayKit/logger"
	"github.com/AltairaLabs/RelayKit/telemetry"
)

const (
	// defaultTimeout bounds one classification round-trip.
	defaultTimeout = 10 * time.Second

	serviceName = "classify"

	// maxErrorBodyLen caps how much of an error response body lands in logs
	// and error messages.
	maxErrorBodyLen = 512
)

// Client calls an external classification service over HTTP. The service
// receives `{"text": ...}` and answers with a Classification document,
// optionally nested inside a provider envelope addressed by a JMESPath
// result path.
type Client struct {
	endpoint   string
	httpClient *http.Client
	credential Credential
	limiter    *rate.Limiter
	resultPath *jmespath.JMESPath
}

type clientOptions struct {
	httpClient  *http.Client
	credential  Credential
	tokenSource *credentials.Source
	limiter     *rate.Limiter
	resultPath  string
	timeout     time.Duration
}

// Option configures a Client.
type Option func(*clientOptions)

// WithCredential sets the credential applied to every request.
func WithCredential(credential Credential) Option {
	return func(o *clientOptions) {
		o.credential = credential
	}
}

// WithBearerToken authenticates requests with a fixed bearer token.
func WithBearerToken(token string) Option {
	return func(o *clientOptions) {
		o.credential = NewStaticTokenCredential(token)
	}
}

// WithResolvedToken resolves a bearer token through the credentials chain,
// falling back to the conventional oracle environment variables. Resolution
// failure surfaces from NewClient; an empty resolution leaves the client
// unauthenticated. An explicitly supplied credential takes precedence.
func WithResolvedToken(src credentials.Source) Option {
	return func(o *clientOptions) {
		o.tokenSource = &src
	}
}

// WithRateLimit bounds outbound requests to rps per second with the given
// burst. Classify blocks until the limiter admits the request.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *clientOptions) {
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithResultPath sets a JMESPath expression locating the classification
// document inside the provider's response envelope, for example "result" or
// "data.classification".
func WithResultPath(path string) Option {
	return func(o *clientOptions) {
		o.resultPath = path
	}
}

// WithTimeout sets the per-request timeout. Ignored when a custom HTTP
// client is supplied.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithHTTPClient replaces the default HTTP client, including its
// instrumented transport.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// NewClient creates an oracle client for the given endpoint.
//
// Example:
//
//	oracle, err := classify.NewClient("https://scoring.internal/v1/classify",
//	    classify.WithBearerToken(token),
//	    classify.WithRateLimit(5, 2),
//	    classify.WithResultPath("result"))
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("oracle endpoint is required")
	}

	options := &clientOptions{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(options)
	}

	if options.tokenSource != nil && options.credential == nil {
		token, err := credentials.Resolve(*options.tokenSource, credentials.OracleEnvVars...)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve oracle credential: %w", err)
		}
		if token != "" {
			options.credential = NewStaticTokenCredential(token)
		}
	}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   options.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	client := &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		credential: options.credential,
		limiter:    options.limiter,
	}

	if options.resultPath != "" {
		compiled, err := jmespath.Compile(options.resultPath)
		if err != nil {
			return nil, fmt.Errorf("invalid result path %q: %w", options.resultPath, err)
		}
		client.resultPath = compiled
	}

	return client, nil
}

// classifyRequest is the wire request for the scoring service.
type classifyRequest struct {
	Text string `json:"text"`
}

// Classify posts the text to the scoring service and decodes its routing
// decision.
func (c *Client) Classify(ctx context.Context, text string) (*Classification, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.credential != nil {
		if err := c.credential.Apply(ctx, req); err != nil {
			return nil, err
		}
	}
	telemetry.InjectTraceHeaders(ctx, req)

	// Note text is never logged, only its length
	logger.APIRequest(serviceName, http.MethodPost, c.endpoint, nil, nil)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.APIResponse(serviceName, 0, "", err)
		return nil, fmt.Errorf("classification request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read classification response: %w", err)
	}
	logger.APIResponse(serviceName, resp.StatusCode, "", nil)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classification API error (status %d): %s",
			resp.StatusCode, truncateBody(respBody))
	}

	classification, err := c.decode(respBody)
	if err != nil {
		return nil, err
	}

	logger.Debug("Classification completed",
		"collection", classification.CollectionName,
		"create", classification.ShouldCreateCollection,
		"fields", len(classification.ExtractedFields),
		"text_len", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return classification, nil
}

// decode maps the response body onto a Classification, unwrapping the
// provider envelope when a result path is configured.
func (c *Client) decode(body []byte) (*Classification, error) {
	var classification Classification

	if c.resultPath == nil {
		if err := json.Unmarshal(body, &classification); err != nil {
			return nil, fmt.Errorf("failed to unmarshal classification: %w", err)
		}
		return validated(&classification)
	}

	var document any
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, fmt.Errorf("failed to unmarshal classification envelope: %w", err)
	}

	result, err := c.resultPath.Search(document)
	if err != nil {
		return nil, fmt.Errorf("result path search failed: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("result path matched nothing in classification response")
	}

	// Re-marshal the extracted subtree to reach the typed struct
	jsonData, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to convert extracted result: %w", err)
	}
	if err := json.Unmarshal(jsonData, &classification); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extracted result: %w", err)
	}
	return validated(&classification)
}

func validated(classification *Classification) (*Classification, error) {
	if classification.CollectionName == "" {
		return nil, ErrNoCollection
	}
	return classification, nil
}

func truncateBody(body []byte) string {
	s := string(body)
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen] + "..."
	}
	return s
}
