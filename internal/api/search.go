package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pinpoint/internal/search"
	"github.com/pinpoint/pkg/models"
)

// search streams the pipeline's events for one question. Fields come from
// query parameters and, when present, the request body.
func (s *Server) search(c echo.Context) error {
	var req models.SearchRequest
	binder := &echo.DefaultBinder{}
	if err := binder.BindQueryParams(c, &req); err != nil {
		return unprocessable(c, "invalid query parameters")
	}
	if err := binder.BindBody(c, &req); err != nil {
		return unprocessable(c, "invalid request body")
	}
	if err := req.Validate(s.minQueryLength); err != nil {
		return unprocessable(c, err.Error())
	}

	ctx := c.Request().Context()
	log := zerolog.Ctx(ctx)

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	enc := search.NewEncoder(c.Response())
	if err := s.runner.Run(ctx, req, enc); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug().Str("stage", string(enc.Stage())).Msg("client disconnected")
		} else {
			log.Error().Err(err).Str("stage", string(enc.Stage())).Msg("search stream failed")
		}
	}
	return nil
}

func unprocessable(c echo.Context, detail string) error {
	return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": detail})
}
