package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/stacklok/eol-sync/internal/httpclient"
	"github.com/stacklok/eol-sync/internal/otel"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/stacklok/eol-sync/internal/catalog Client

// Client is the entity store boundary used by the sync manager
type Client interface {
	// Authenticate exchanges client credentials for an access token
	Authenticate(ctx context.Context, clientID, clientSecret string) (*oauth2.Token, error)

	// ListEntities returns every entity of the blueprint
	ListEntities(ctx context.Context, blueprint string, token *oauth2.Token) ([]Entity, error)

	// PatchEntityProperties updates the given properties of one entity
	PatchEntityProperties(
		ctx context.Context, blueprint, id string, properties map[string]any, token *oauth2.Token,
	) error
}

// HTTPClient implements Client against the catalog REST API
type HTTPClient struct {
	httpClient httpclient.Client
	baseURL    string
	tracer     trace.Tracer
	userAgent  string
	now        func() time.Time
}

// ClientOption configures an HTTPClient
type ClientOption func(*HTTPClient)

// WithTracer sets the tracer used for catalog call spans
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *HTTPClient) {
		c.tracer = tracer
	}
}

// WithUserAgent overrides the User-Agent sent with every catalog request
func WithUserAgent(userAgent string) ClientOption {
	return func(c *HTTPClient) {
		c.userAgent = userAgent
	}
}

// NewHTTPClient creates a catalog client for the API rooted at baseURL
func NewHTTPClient(baseURL string, httpClient httpclient.Client, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type accessTokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// Authenticate exchanges client credentials for an access token
func (c *HTTPClient) Authenticate(ctx context.Context, clientID, clientSecret string) (*oauth2.Token, error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "catalog.Authenticate")
	token, err := c.authenticate(ctx, clientID, clientSecret)
	otel.EndSpan(span, err)
	return token, err
}

func (c *HTTPClient) authenticate(ctx context.Context, clientID, clientSecret string) (*oauth2.Token, error) {
	data, err := c.httpClient.Post(ctx, c.baseURL+"/auth/access_token", accessTokenRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}, c.requestOptions(nil)...)
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	if !gjson.ValidBytes(data) {
		return nil, &AuthError{Err: errors.New("token response is not valid JSON")}
	}
	fields := gjson.GetManyBytes(data, "accessToken", "tokenType", "expiresIn")
	if fields[0].String() == "" {
		return nil, &AuthError{Err: errors.New("token response did not contain an access token")}
	}

	token := &oauth2.Token{
		AccessToken: fields[0].String(),
		TokenType:   fields[1].String(),
	}
	if expiresIn := fields[2].Int(); expiresIn > 0 {
		token.Expiry = c.now().Add(time.Duration(expiresIn) * time.Second)
	}

	slog.DebugContext(ctx, "Authenticated with catalog", "expiry", token.Expiry)
	return token, nil
}

// ListEntities returns every entity of the blueprint
func (c *HTTPClient) ListEntities(ctx context.Context, blueprint string, token *oauth2.Token) ([]Entity, error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "catalog.ListEntities",
		trace.WithAttributes(otel.AttrBlueprint.String(blueprint)))

	entities, err := c.listEntities(ctx, blueprint, token)
	if err == nil {
		span.SetAttributes(otel.AttrResultCount.Int(len(entities)))
	}
	otel.EndSpan(span, err)
	return entities, err
}

func (c *HTTPClient) listEntities(ctx context.Context, blueprint string, token *oauth2.Token) ([]Entity, error) {
	if !hasAccessToken(token) {
		return nil, &FetchError{Blueprint: blueprint, Err: ErrInvalidToken}
	}

	data, err := c.httpClient.Get(ctx, c.entitiesURL(blueprint), c.requestOptions(token)...)
	if err != nil {
		return nil, &FetchError{Blueprint: blueprint, Err: err}
	}

	entities, err := parseEntities(data)
	if err != nil {
		return nil, &FetchError{Blueprint: blueprint, Err: fmt.Errorf("malformed response: %w", err)}
	}

	slog.DebugContext(ctx, "Listed catalog entities", "blueprint", blueprint, "count", len(entities))
	return entities, nil
}

type patchRequest struct {
	Properties map[string]any `json:"properties"`
}

// PatchEntityProperties updates the given properties of one entity
func (c *HTTPClient) PatchEntityProperties(
	ctx context.Context, blueprint, id string, properties map[string]any, token *oauth2.Token,
) error {
	ctx, span := otel.StartSpan(ctx, c.tracer, "catalog.PatchEntityProperties",
		trace.WithAttributes(
			otel.AttrBlueprint.String(blueprint),
			otel.AttrEntityID.String(id),
		))

	err := c.patchEntityProperties(ctx, blueprint, id, properties, token)
	otel.EndSpan(span, err)
	return err
}

func (c *HTTPClient) patchEntityProperties(
	ctx context.Context, blueprint, id string, properties map[string]any, token *oauth2.Token,
) error {
	if !hasAccessToken(token) {
		return &UpdateError{Blueprint: blueprint, EntityID: id, Err: ErrInvalidToken}
	}

	endpoint := c.entitiesURL(blueprint) + "/" + url.PathEscape(id)
	body := patchRequest{Properties: properties}
	if _, err := c.httpClient.Patch(ctx, endpoint, body, c.requestOptions(token)...); err != nil {
		return &UpdateError{Blueprint: blueprint, EntityID: id, Err: err}
	}
	return nil
}

// hasAccessToken reports whether token can be sent at all. Expiry is left to
// the catalog, which answers a stale token with 401.
func hasAccessToken(token *oauth2.Token) bool {
	return token != nil && token.AccessToken != ""
}

func (c *HTTPClient) entitiesURL(blueprint string) string {
	return fmt.Sprintf("%s/blueprints/%s/entities", c.baseURL, url.PathEscape(blueprint))
}

// requestOptions returns the per-request options; token may be nil
func (c *HTTPClient) requestOptions(token *oauth2.Token) []httpclient.RequestOption {
	var opts []httpclient.RequestOption
	if c.userAgent != "" {
		opts = append(opts, httpclient.WithHeader("User-Agent", c.userAgent))
	}
	if token != nil {
		opts = append(opts, func(req *http.Request) {
			token.SetAuthHeader(req)
		})
	}
	return opts
}
