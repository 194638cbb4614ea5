// Package upnp executes control actions against players: it builds SOAP
// envelopes from a static action catalog, posts them and decodes the reply.
package upnp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Output is the decoded result of an action: Success, Value or Values.
type Output interface {
	isOutput()
}

// Success is returned by actions that declare no output arguments.
type Success struct{}

// Value is the single output of an action that declares exactly one.
type Value string

// Values maps output names to values for actions that declare several.
type Values map[string]string

func (Success) isOutput() {}
func (Value) isOutput()   {}
func (Values) isOutput()  {}

// Client executes actions against players. It holds no per-player state.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	tracer     trace.Tracer
}

// NewClient creates a client. rateLimitRPS paces outgoing calls across all
// players; zero disables pacing.
func NewClient(timeout time.Duration, rateLimitRPS float64) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if rateLimitRPS > 0 {
		burst := int(rateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rateLimitRPS), burst)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		tracer:     otel.Tracer("github.com/dokzlo13/sonosd/internal/upnp"),
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Execute runs one action against one player.
//
// Every declared input must be present in args or ErrMissingArgument is
// returned without sending anything. A 500 reply is decoded into a *Fault.
// Transport errors are returned unchanged. There are no retries.
func (c *Client) Execute(ctx context.Context, addr Address, servicePath, action string, args Args) (Output, error) {
	spec, err := Lookup(servicePath, action)
	if err != nil {
		return nil, err
	}
	for _, name := range spec.In {
		if _, ok := args[name]; !ok {
			return nil, fmt.Errorf("%w: %s.%s requires %s", ErrMissingArgument, ServiceID(servicePath), action, name)
		}
	}

	service := ServiceID(servicePath)
	urn := ServiceURN(service)

	ctx, span := c.tracer.Start(ctx, "upnp."+action, trace.WithAttributes(
		attribute.String("upnp.service", service),
		attribute.String("upnp.action", action),
		attribute.String("upnp.player", string(addr)),
	))
	defer span.End()

	out, err := c.do(ctx, addr, servicePath, service, urn, action, spec, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (c *Client) do(ctx context.Context, addr Address, servicePath, service, urn, action string, spec ActionSpec, args Args) (Output, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body := BuildEnvelope(urn, action, spec.In, args)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, string(addr)+servicePath, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", fmt.Sprintf(`"%s#%s"`, urn, action))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("player", string(addr)).
		Str("service", service).
		Str("action", action).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("UPnP action executed")

	switch resp.StatusCode {
	case http.StatusOK:
		values, err := parseResponse(data, urn, action)
		if err != nil {
			return nil, err
		}
		return shapeOutput(service, action, spec.Out, values)
	case http.StatusInternalServerError:
		return nil, parseFault(data, resp.StatusCode, service, action)
	default:
		return nil, fmt.Errorf("%w: %s.%s returned HTTP %d", ErrUnexpectedResponse, service, action, resp.StatusCode)
	}
}

func shapeOutput(service, action string, names []string, values map[string]string) (Output, error) {
	for _, name := range names {
		if _, ok := values[name]; !ok {
			return nil, fmt.Errorf("%w: %s.%s response lacks %s", ErrMissingResponseArgument, service, action, name)
		}
	}

	switch len(names) {
	case 0:
		return Success{}, nil
	case 1:
		return Value(values[names[0]]), nil
	}

	out := make(Values, len(names))
	for _, name := range names {
		out[name] = values[name]
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, addr Address, servicePath, action string, args Args) error {
	_, err := c.Execute(ctx, addr, servicePath, action, args)
	return err
}

func (c *Client) callValue(ctx context.Context, addr Address, servicePath, action string, args Args) (string, error) {
	out, err := c.Execute(ctx, addr, servicePath, action, args)
	if err != nil {
		return "", err
	}
	v, ok := out.(Value)
	if !ok {
		return "", fmt.Errorf("%w: %s returned %T", ErrUnexpectedResponse, action, out)
	}
	return string(v), nil
}

func (c *Client) callValues(ctx context.Context, addr Address, servicePath, action string, args Args) (Values, error) {
	out, err := c.Execute(ctx, addr, servicePath, action, args)
	if err != nil {
		return nil, err
	}
	v, ok := out.(Values)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", ErrUnexpectedResponse, action, out)
	}
	return v, nil
}
