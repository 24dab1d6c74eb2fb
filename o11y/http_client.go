package o11y

import (
	"net/http"
)

// HTTPClient is the outbound client surface the platform adapters, the
// issuance client and the AWS SDK share.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
	Get(string) (*http.Response, error)
}

type tracedHTTPClient struct {
	HTTPClient
}

// WrapClient instruments a client so every outbound call made during a
// claim run (issuance, sponsorship, the Idena API, AWS) shows up as a
// client span under the active trace.
func WrapClient(c HTTPClient) HTTPClient {
	return &tracedHTTPClient{HTTPClient: c}
}

func (c *tracedHTTPClient) Do(req *http.Request) (res *http.Response, err error) {
	ctx, span := Trace(req.Context(), req.Method+" "+req.URL.Host,
		WithSpanKind(SpanKindClient),
		WithMetadata(map[string]any{
			"http.method": req.Method,
			"http.url":    req.URL.String(),
			"http.path":   req.URL.Path,
		}),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
		} else {
			span.SetMetadata(map[string]any{
				"http.status_code":             res.StatusCode,
				"http.response_content_length": res.ContentLength,
			})
			span.SetStatus(res.StatusCode)
		}
		span.End()
	}()

	return c.HTTPClient.Do(req.WithContext(ctx))
}

func (c *tracedHTTPClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
