// Package http serves a debuggee over the /jsdbg-server protocol.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgclient"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes a dbgclient.Client over HTTP.
type Server struct {
	echo    *echo.Echo
	client  dbgclient.Client
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
	started time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// NewServer creates a new HTTP server backed by client.
func NewServer(client dbgclient.Client, logger *zap.Logger, cfg *Config) (*Server, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9300,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		client:  client,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
		started: time.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/v1/status", s.handleStatus)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	dbg := s.echo.Group(strings.TrimSuffix(dbgclient.PathPrefix, "/"))
	dbg.GET("/"+dbgclient.OpPointerSize, s.handlePointerSize)
	dbg.GET("/"+dbgclient.OpTypeSize, s.handleTypeSize)
	dbg.GET("/"+dbgclient.OpFieldOffset, s.handleFieldOffset)
	dbg.GET("/"+dbgclient.OpTypeFields, s.handleTypeFields)
	dbg.GET("/"+dbgclient.OpBaseTypes, s.handleBaseTypes)
	dbg.GET("/"+dbgclient.OpIsEnum, s.handleIsEnum)
	dbg.GET("/"+dbgclient.OpConstantName, s.handleConstantName)
	dbg.GET("/"+dbgclient.OpConstantValue, s.handleConstantValue)
	dbg.GET("/"+dbgclient.OpSymbolName, s.handleSymbolName)
	dbg.GET("/"+dbgclient.OpGlobalSymbol, s.handleGlobalSymbol)
	dbg.GET("/"+dbgclient.OpReadNumber, s.handleReadNumber)
	dbg.GET("/"+dbgclient.OpReadArray, s.handleReadArray)
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := StatusResponse{
		Status:  "ok",
		Version: s.config.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if size, err := s.client.PointerSize(c.Request().Context()); err == nil {
		resp.PointerSize = size
	} else {
		resp.Status = "degraded"
	}
	return c.JSON(http.StatusOK, resp)
}

// respond writes v, or the protocol error payload when err is set.
func (s *Server) respond(c echo.Context, v any, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, v)
	}

	msg := err.Error()
	var rerr *dbgclient.RemoteError
	if errors.As(err, &rerr) && rerr.Err == nil {
		msg = rerr.Payload
	}
	s.logger.Debug("debugger request failed",
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.JSON(http.StatusOK, dbgclient.ErrorResponse{Error: msg})
}

func requireParam(c echo.Context, name string) (string, error) {
	v := c.QueryParam(name)
	if v == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s is required", name))
	}
	return v, nil
}

// uintParam parses a decimal or 0x-prefixed unsigned parameter.
func uintParam(c echo.Context, name string) (uint64, error) {
	raw, err := requireParam(c, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be an unsigned integer", name))
	}
	return v, nil
}

func widthParam(c echo.Context) (int, error) {
	raw, err := requireParam(c, "type")
	if err != nil {
		return 0, err
	}
	width, ok := dbgclient.ParseWidth(raw)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported type %q", raw))
	}
	return width, nil
}

func moduleAndType(c echo.Context) (string, string, error) {
	module, err := requireParam(c, "module")
	if err != nil {
		return "", "", err
	}
	typ, err := requireParam(c, "type")
	if err != nil {
		return "", "", err
	}
	return module, typ, nil
}

func (s *Server) handlePointerSize(c echo.Context) error {
	size, err := s.client.PointerSize(c.Request().Context())
	return s.respond(c, dbgclient.PointerSizeResponse{PointerSize: size}, err)
}

func (s *Server) handleTypeSize(c echo.Context) error {
	module, typ, err := moduleAndType(c)
	if err != nil {
		return err
	}
	size, err := s.client.TypeSize(c.Request().Context(), module, typ)
	return s.respond(c, dbgclient.SizeResponse{Size: size}, err)
}

func (s *Server) handleFieldOffset(c echo.Context) error {
	module, typ, err := moduleAndType(c)
	if err != nil {
		return err
	}
	field, err := requireParam(c, "field")
	if err != nil {
		return err
	}
	info, err := s.client.FieldOffset(c.Request().Context(), module, typ, field)
	return s.respond(c, info, err)
}

func (s *Server) handleTypeFields(c echo.Context) error {
	module, typ, err := moduleAndType(c)
	if err != nil {
		return err
	}
	includeBases, _ := strconv.ParseBool(c.QueryParam("includeBaseTypes"))
	fields, err := s.client.TypeFields(c.Request().Context(), module, typ, includeBases)
	if fields == nil {
		fields = []dbgclient.TypeField{}
	}
	return s.respond(c, dbgclient.FieldsResponse{Fields: fields}, err)
}

func (s *Server) handleBaseTypes(c echo.Context) error {
	module, typ, err := moduleAndType(c)
	if err != nil {
		return err
	}
	bases, err := s.client.BaseTypes(c.Request().Context(), module, typ)
	if bases == nil {
		bases = []dbgclient.BaseType{}
	}
	return s.respond(c, dbgclient.BaseTypesResponse{BaseTypes: bases}, err)
}

func (s *Server) handleIsEnum(c echo.Context) error {
	module, typ, err := moduleAndType(c)
	if err != nil {
		return err
	}
	isEnum, err := s.client.IsEnum(c.Request().Context(), module, typ)
	return s.respond(c, dbgclient.IsEnumResponse{IsEnum: isEnum}, err)
}

func (s *Server) handleConstantName(c echo.Context) error {
	module, err := requireParam(c, "module")
	if err != nil {
		return err
	}
	value, err := uintParam(c, "constant")
	if err != nil {
		return err
	}
	names, err := s.client.ConstantName(c.Request().Context(), module, c.QueryParam("type"), value)
	if names == nil {
		names = []string{}
	}
	return s.respond(c, dbgclient.NamesResponse{Names: names}, err)
}

func (s *Server) handleConstantValue(c echo.Context) error {
	module, err := requireParam(c, "module")
	if err != nil {
		return err
	}
	name, err := requireParam(c, "name")
	if err != nil {
		return err
	}
	value, err := s.client.ConstantValue(c.Request().Context(), module, c.QueryParam("type"), name)
	return s.respond(c, dbgclient.ValueResponse{Value: value}, err)
}

func (s *Server) handleSymbolName(c echo.Context) error {
	addr, err := uintParam(c, "pointer")
	if err != nil {
		return err
	}
	sym, err := s.client.SymbolName(c.Request().Context(), addr)
	return s.respond(c, sym, err)
}

func (s *Server) handleGlobalSymbol(c echo.Context) error {
	module, err := requireParam(c, "module")
	if err != nil {
		return err
	}
	symbol, err := requireParam(c, "symbol")
	if err != nil {
		return err
	}
	g, err := s.client.GlobalSymbol(c.Request().Context(), module, symbol)
	return s.respond(c, g, err)
}

func (s *Server) handleReadNumber(c echo.Context) error {
	width, err := widthParam(c)
	if err != nil {
		return err
	}
	addr, err := uintParam(c, "pointer")
	if err != nil {
		return err
	}
	v, err := s.client.ReadNumber(c.Request().Context(), addr, width)
	return s.respond(c, dbgclient.ValueResponse{Value: v}, err)
}

func (s *Server) handleReadArray(c echo.Context) error {
	width, err := widthParam(c)
	if err != nil {
		return err
	}
	addr, err := uintParam(c, "pointer")
	if err != nil {
		return err
	}
	length, err := uintParam(c, "length")
	if err != nil {
		return err
	}
	if length > dbgclient.MaxArrayCount {
		return s.respond(c, nil, dbgclient.Errorf(dbgclient.OpReadArray, "length %d exceeds %d", length, dbgclient.MaxArrayCount))
	}
	vals, err := s.client.ReadArray(c.Request().Context(), addr, width, int(length))
	return s.respond(c, dbgclient.ArrayResponse{Array: vals}, err)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
