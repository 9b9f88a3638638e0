package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"

	"github.com/pinpoint/internal/upstream"
)

// Gemini asks callers to back off longer when the service is overloaded.
const unavailableRetryAfter = 120 * time.Second

// classify maps a provider failure onto the upstream taxonomy. Context
// cancellation passes through unchanged.
func classify(service, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ue *upstream.Error
	if errors.As(err, &ue) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return upstream.New(upstream.KindTimeout, service, op, "generation timed out", err)
	}

	if status, msg, ok := apiStatus(err); ok {
		return fromStatus(service, op, status, msg, err)
	}

	var le *llms.Error
	if errors.As(err, &le) {
		if kind, ok := langchainKinds[le.Code]; ok {
			return upstream.New(kind, service, op, le.Message, err)
		}
		if le.Code == llms.ErrCodeCanceled {
			return context.Canceled
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return upstream.New(upstream.KindTimeout, service, op, "generation timed out", err)
		}
		return upstream.New(upstream.KindUpstreamUnavailable, service, op, "connection failed", err)
	}

	return upstream.New(upstream.KindFromMessage(err.Error()), service, op, "", err)
}

func apiStatus(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Message, true
	}
	return 0, "", false
}

func fromStatus(service, op string, status int, msg string, cause error) *upstream.Error {
	kind := upstream.KindFromStatus(status)
	if kind == upstream.KindUnexpected {
		kind = upstream.KindFromMessage(msg)
	}
	e := upstream.New(kind, service, op, msg, cause).WithStatus(status)
	if status == http.StatusServiceUnavailable {
		e.WithRetryAfter(unavailableRetryAfter)
	}
	return e
}

var langchainKinds = map[llms.ErrorCode]upstream.Kind{
	llms.ErrCodeAuthentication:      upstream.KindAccessDenied,
	llms.ErrCodeRateLimit:           upstream.KindRateLimited,
	llms.ErrCodeQuotaExceeded:       upstream.KindRateLimited,
	llms.ErrCodeInvalidRequest:      upstream.KindValidationFailed,
	llms.ErrCodeContentFilter:       upstream.KindValidationFailed,
	llms.ErrCodeTokenLimit:          upstream.KindValidationFailed,
	llms.ErrCodeResourceNotFound:    upstream.KindNotFound,
	llms.ErrCodeTimeout:             upstream.KindTimeout,
	llms.ErrCodeProviderUnavailable: upstream.KindUpstreamUnavailable,
}
