// Package server exposes crop decisions and rendered crops over HTTP for
// images below a configured root directory.
package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/menta2k/image-regions/internal/config"
	"github.com/menta2k/image-regions/internal/store"
	"github.com/menta2k/image-regions/internal/utils"
	"github.com/menta2k/image-regions/pkg/analyzer"
	"github.com/menta2k/image-regions/pkg/filter"
	"github.com/menta2k/image-regions/pkg/metadata"
	"github.com/menta2k/image-regions/pkg/processing"
)

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// Server is the HTTP host of the resolver
type Server struct {
	Echo *echo.Echo

	config    *config.Config
	analyzer  *analyzer.ImageAnalyzer
	filter    *filter.Filter
	processor *processing.Processor
	cache     *store.Store
}

// New wires the routes. cache may be nil to disable decision caching.
func New(cfg *config.Config, cache *store.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetPrefix("server")
	e.Logger.SetLevel(cfg.Log.Lvl())

	s := &Server{
		Echo:      e,
		config:    cfg,
		analyzer:  analyzer.New(),
		filter:    filter.NewWithConfig(cfg.Filter, e.Logger),
		processor: processing.NewProcessor(),
		cache:     cache,
	}

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if !errors.As(err, &he) || he.Code >= 500 {
			c.Logger().Errorf("server error: %v", err)
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			c.Logger().Infof("%s %s -> %d (%s)", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(varyOnHints)

	e.GET("/healthz", handleHealth)
	e.GET("/decision/*", s.handleDecision)
	e.GET("/render/*", s.handleRender)

	return s
}

// Start listens on the configured address
func (s *Server) Start() error {
	if err := s.Echo.Start(s.config.Server.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

// Responses depend on client hints, so shared caches must key on them.
func varyOnHints(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add(echo.HeaderVary, filter.HeaderDPR)
		c.Response().Header().Add(echo.HeaderVary, filter.HeaderDownlink)
		return next(c)
	}
}

func handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) handleDecision(c echo.Context) error {
	res, _, err := s.resolve(c, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleRender(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = s.config.Output.DefaultFormat
	}
	contentType, ok := contentTypes[format]
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported format "+format)
	}

	res, data, err := s.resolve(c, true)
	if err != nil {
		return err
	}

	img, err := s.processor.Decode(data)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	}
	out, err := s.processor.Apply(img, res)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := s.processor.Encode(&buf, out, format, s.config.Output.Quality, s.config.Output.Lossless); err != nil {
		return err
	}
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}

// resolve runs the filter for the image named by the wildcard path. The
// image bytes are returned when needBytes is set or the decision was not
// cached.
func (s *Server) resolve(c echo.Context, needBytes bool) (filter.Result, []byte, error) {
	path, err := utils.SafeJoin(s.config.Server.ImageRoot, c.Param("*"))
	if err != nil {
		return filter.Result{}, nil, echo.ErrNotFound
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || !utils.IsImageFile(path) {
		return filter.Result{}, nil, echo.ErrNotFound
	}

	req, err := request(c)
	if err != nil {
		return filter.Result{}, nil, err
	}

	key := store.Key(path, info.Size(), info.ModTime(), req)
	if s.cache != nil {
		if res, err := s.cache.Get(key); err == nil {
			if !needBytes {
				return res, nil, nil
			}
			data, err := os.ReadFile(path)
			return res, data, err
		} else if !errors.Is(err, store.ErrNotFound) {
			c.Logger().Warnf("decision cache read failed: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return filter.Result{}, nil, err
	}
	img, err := s.analyzer.Inspect(data)
	if err != nil {
		return filter.Result{}, nil, echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	}

	res, err := s.filter.Run(img.Size, img.Metadata, req)
	if errors.Is(err, metadata.ErrMalformedNumber) {
		return filter.Result{}, nil, echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if err != nil {
		return filter.Result{}, nil, err
	}

	if s.cache != nil {
		if err := s.cache.Put(key, res); err != nil {
			c.Logger().Warnf("decision cache write failed: %v", err)
		}
	}
	return res, data, nil
}

func request(c echo.Context) (filter.Request, error) {
	req := filter.Request{Headers: c.Request().Header}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"w", &req.Width}, {"h", &req.Height}} {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return req, echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name)
		}
		*p.dst = v
	}

	if raw := c.QueryParam("dpr"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return req, echo.NewHTTPError(http.StatusBadRequest, "invalid dpr")
		}
		req.DPR = v
	}
	return req, nil
}
