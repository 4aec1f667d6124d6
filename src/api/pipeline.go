package api

import (
	"net/http"

	"github.com/agroscan/agroscan-core/src/models"
)

// RequestInterceptor mutates an outbound request before it is sent.
type RequestInterceptor func(req *http.Request) error

// ResponseHandler inspects an outcome and may replace it, for example by
// resending the request through next. Handlers run in order after every
// round trip.
type ResponseHandler func(next http.RoundTripper, req *http.Request, resp *http.Response, err error) (*http.Response, error)

// Transport chains request interceptors and response handlers around a base
// RoundTripper. Stages are plain funcs so each is testable without a network.
type Transport struct {
	Base         http.RoundTripper
	Interceptors []RequestInterceptor
	Handlers     []ResponseHandler
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// RoundTrippers must not mutate the caller's request.
	r := req.Clone(req.Context())
	for _, intercept := range t.Interceptors {
		if err := intercept(r); err != nil {
			return nil, err
		}
	}

	resp, err := base.RoundTrip(r)
	for _, handle := range t.Handlers {
		resp, err = handle(base, r, resp, err)
	}

	return resp, err
}

// BearerAuth attaches the stored access token. A missing token sends the
// request bare: the backend decides whether that is acceptable.
func BearerAuth(tokens models.TokenSource) RequestInterceptor {
	return func(req *http.Request) error {
		token, err := tokens.AccessToken(req.Context())
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return nil
	}
}

// DeviceID tags every request with the per-install identifier.
func DeviceID(id string) RequestInterceptor {
	return func(req *http.Request) error {
		if id != "" {
			req.Header.Set("X-Device-ID", id)
		}
		return nil
	}
}

// RefreshRetry resends a request exactly once after a 401: refresh the
// access token, re-attach it, replay through next. A refresh failure is
// returned instead of the response; the original request is not resent. The
// replayed response comes back unchanged, so a second 401 surfaces to the
// caller without another refresh.
func RefreshRetry(tokens models.TokenSource) ResponseHandler {
	return func(next http.RoundTripper, req *http.Request, resp *http.Response, err error) (*http.Response, error) {
		if err != nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
			return resp, err
		}

		// A body that cannot be rewound cannot be replayed.
		if req.Body != nil && req.GetBody == nil {
			return resp, nil
		}

		token, refreshErr := tokens.Refresh(req.Context())
		if refreshErr != nil {
			resp.Body.Close()
			return nil, refreshErr
		}

		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return resp, nil
			}
			retry.Body = body
		}
		retry.Header.Set("Authorization", "Bearer "+token)

		resp.Body.Close()
		return next.RoundTrip(retry)
	}
}
