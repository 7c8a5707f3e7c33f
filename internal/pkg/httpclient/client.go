// internal/pkg/httpclient/client.go

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

// maxBodyBytes 限制读取下游响应体的大小
const maxBodyBytes = 1 << 20

// Client 是一个可追踪的、可注入的HTTP客户端
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
}

// Response 是下游响应的快照，Body 已经完整读出
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// NewClient 创建一个新的客户端实例。
// http.Client 不设置 Timeout，超时完全由每次请求传入的 context 控制。
func NewClient(tracer trace.Tracer) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:     tracer,
		HTTPClient: httpClient,
	}
}

// PostJSON 以 JSON 发送 payload，返回下游的原始响应，不对状态码做判断
func (c *Client) PostJSON(ctx context.Context, serviceURL string, payload any) (*Response, error) {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return nil, err
	}
	spanName := fmt.Sprintf("call-%s", strings.Split(parsedURL.Host, ":")[0])

	ctx, span := c.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsedURL.String(), bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	span.SetAttributes(
		attribute.String("http.url", parsedURL.String()),
		attribute.String("http.method", http.MethodPost),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// Post 发送 JSON，任何非 2xx 的响应都视为错误
func (c *Client) Post(ctx context.Context, serviceURL string, payload any) error {
	resp, err := c.PostJSON(ctx, serviceURL, payload)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("service %s returned status %d", serviceURL, resp.StatusCode)
		trace.SpanFromContext(ctx).RecordError(err)
		return err
	}
	return nil
}
