package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Resolver 将服务名解析为基础 URL（由 Nacos 客户端实现）。
type Resolver interface {
	GetServiceURL(serviceName string) (string, error)
}

// StatusError 表示下游返回了非 2xx 状态码。
// 调用方通过 StatusCode 把下游错误映射回自己的领域错误。
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service %s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Client 是一个可追踪的、经由服务发现寻址的 HTTP 客户端。
type Client struct {
	tracer   trace.Tracer
	resolver Resolver
	// 不设置 Timeout 字段，超时完全受控于每次请求传入的 context
	httpClient *http.Client
}

// NewClient 创建一个新的客户端实例。
func NewClient(tracer trace.Tracer, resolver Resolver) *Client {
	return &Client{
		tracer:   tracer,
		resolver: resolver,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
	}
}

// GetJSON 调用下游服务的 GET 接口并把响应体解码到 out。
func (c *Client) GetJSON(ctx context.Context, serviceName, path string, params url.Values, out interface{}) error {
	body, err := c.call(ctx, http.MethodGet, serviceName, path, params, nil, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// PostJSON 向下游服务 POST 一个 JSON 请求体，可选地解码响应。
func (c *Client) PostJSON(ctx context.Context, serviceName, path string, in, out interface{}) error {
	return c.PostJSONWithHeaders(ctx, serviceName, path, nil, in, out)
}

// PostJSONWithHeaders 与 PostJSON 相同，但附带额外请求头（如幂等键）。
func (c *Client) PostJSONWithHeaders(ctx context.Context, serviceName, path string, headers map[string]string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	body, err := c.call(ctx, http.MethodPost, serviceName, path, nil, payload, headers)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// PostForm 以查询参数形式 POST，不关心响应体。
func (c *Client) PostForm(ctx context.Context, serviceName, path string, params url.Values) error {
	_, err := c.call(ctx, http.MethodPost, serviceName, path, params, nil, nil)
	return err
}

func (c *Client) call(ctx context.Context, method, serviceName, path string, params url.Values, payload []byte, headers map[string]string) ([]byte, error) {
	spanName := fmt.Sprintf("call-%s", serviceName)
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	base, err := c.resolver.GetServiceURL(serviceName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	downstreamURL, err := url.Parse(strings.TrimSuffix(base, "/") + path)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if params != nil {
		downstreamURL.RawQuery = params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, downstreamURL.String(), reqBody)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	span.SetAttributes(
		attribute.String("http.url", downstreamURL.String()),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
		span.RecordError(statusErr)
		span.SetStatus(codes.Error, statusErr.Error())
		return nil, statusErr
	}
	return body, nil
}
