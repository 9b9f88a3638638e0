package github

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	gh "github.com/google/go-github/v57/github"

	"github.com/pinpoint/internal/upstream"
)

// classify maps a go-github failure onto the upstream taxonomy. Context
// cancellation is returned unchanged so callers can tell it apart from a
// remote failure.
func classify(op string, resp *gh.Response, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		wait := time.Until(rateErr.Rate.Reset.Time)
		return upstream.New(upstream.KindRateLimited, serviceName, op, "API rate limit exceeded", err).
			WithRetryAfter(wait).
			WithStatus(statusOf(rateErr.Response))
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return upstream.New(upstream.KindRateLimited, serviceName, op, "secondary rate limit exceeded", err).
			WithRetryAfter(abuseErr.GetRetryAfter()).
			WithStatus(statusOf(abuseErr.Response))
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return upstream.New(upstream.KindTimeout, serviceName, op, "request timed out", err)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) {
		status := statusOf(respErr.Response)
		kind := upstream.KindFromStatus(status)
		msg := respErr.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		e := upstream.New(kind, serviceName, op, msg, err).WithStatus(status)
		if kind == upstream.KindRateLimited && respErr.Response != nil {
			e.WithRetryAfter(parseRetryAfter(respErr.Response.Header.Get("Retry-After")))
		}
		return e
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return upstream.New(upstream.KindTimeout, serviceName, op, "request timed out", err)
		}
		return upstream.New(upstream.KindUpstreamUnavailable, serviceName, op, "connection failed", err)
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	return upstream.New(upstream.KindUnexpected, serviceName, op, "", err).WithStatus(status)
}

func statusOf(r *http.Response) int {
	if r == nil {
		return 0
	}
	return r.StatusCode
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

func isNotFound(err error) bool {
	return upstream.KindOf(err) == upstream.KindNotFound
}

func invalidRepo(op, repo string) error {
	return upstream.Errorf(upstream.KindValidationFailed, serviceName, op, "invalid repository identifier %q", repo)
}
