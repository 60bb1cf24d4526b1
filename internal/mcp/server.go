package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/exif-turbo/exifturbo/internal/index"
	"github.com/exif-turbo/exifturbo/internal/logging"
	"github.com/exif-turbo/exifturbo/internal/query"
	"github.com/exif-turbo/exifturbo/internal/store"
	"github.com/exif-turbo/exifturbo/pkg/version"
)

const (
	serverName = "exifturbo"

	defaultLimit = 10
	maxLimit     = 50
)

// Server exposes the query engine to MCP clients. It only reads the index.
type Server struct {
	mcp     *mcp.Server
	engine  *query.Engine
	store   *store.Store
	lastRun func() *index.Summary
	logger  *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithLastRun reports the most recent index run in index_status, typically
// Orchestrator.LastSummary when the server runs next to a watcher.
func WithLastRun(fn func() *index.Summary) Option {
	return func(s *Server) { s.lastRun = fn }
}

var tools = []ToolInfo{
	{
		Name: "search_photos",
		Description: "Search indexed photos by EXIF, IPTC and XMP metadata. Bare words match any column; " +
			"column:term restricts a term (make:canon, lens:50mm, keywords:beach, path:2023). " +
			"Supports \"quoted phrases\", AND, OR, NOT, parentheses and trailing * prefixes. " +
			"An empty query lists every photo.",
	},
	{
		Name:        "get_record",
		Description: "Return every stored tag of one photo, by id from search_photos or by absolute path.",
	},
	{
		Name:        "index_status",
		Description: "Report how many photos are indexed, when the index last changed and which columns can be searched and sorted.",
	},
}

// NewServer creates an MCP server over an open store and its engine.
func NewServer(engine *query.Engine, st *store.Store, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, stderrors.New("query engine is required")
	}
	if st == nil {
		return nil, stderrors.New("store is required")
	}

	s := &Server{engine: engine, store: st}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name with JSON-style arguments. It returns the
// same structured output the protocol handlers produce.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search_photos":
		var in SearchPhotosInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.searchPhotos(ctx, in)
	case "get_record":
		var in GetRecordInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.getRecord(ctx, in)
	case "index_status":
		return s.indexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func (s *Server) searchPhotos(ctx context.Context, in SearchPhotosInput) (*SearchPhotosOutput, error) {
	if in.Offset < 0 {
		return nil, NewInvalidParamsError("offset must not be negative")
	}
	start := time.Now()
	requestID := generateRequestID()
	limit := clampLimit(in.Limit, defaultLimit, 1, maxLimit)

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.Int("limit", limit))

	res, err := s.engine.Search(ctx, in.Query, query.Options{
		Limit:  limit,
		Offset: in.Offset,
		Sort:   in.Sort,
		Desc:   in.Desc,
	})
	if err != nil {
		s.logger.Warn("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("total", res.Total),
		slog.Int("result_count", len(res.Hits)))

	out := &SearchPhotosOutput{
		Query:   res.Query,
		Total:   res.Total,
		Offset:  res.Offset,
		Results: make([]PhotoResult, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		out.Results = append(out.Results, toPhotoResult(h))
	}
	return out, nil
}

func (s *Server) getRecord(ctx context.Context, in GetRecordInput) (*GetRecordOutput, error) {
	path := strings.TrimSpace(in.Path)
	if in.ID == 0 && path == "" {
		return nil, NewInvalidParamsError("either id or path is required")
	}

	var rec *store.FileRecord
	err := s.store.View(ctx, func(v *store.View) error {
		var err error
		if in.ID != 0 {
			rec, err = v.Get(ctx, in.ID)
		} else {
			rec, err = v.GetByPath(ctx, path)
		}
		return err
	})
	if err != nil {
		return nil, MapError(err)
	}
	if rec == nil {
		ref := path
		if in.ID != 0 {
			ref = fmt.Sprintf("id %d", in.ID)
		}
		return nil, NewRecordNotFoundError(ref)
	}
	return &GetRecordOutput{MimeType: MimeTypeForPath(rec.Path), Record: rec}, nil
}

func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	out := &IndexStatusOutput{
		DBPath:      s.store.Path(),
		Files:       stats.Files,
		Tags:        stats.Tags,
		SizeBytes:   stats.SizeBytes,
		LastIndexed: formatTime(stats.LastIndexed),
		Columns:     store.ColumnNames(),
		SortKeys:    append([]string{query.SortRelevance}, store.SortKeys()...),
	}
	if s.lastRun != nil {
		if sum := s.lastRun(); sum != nil {
			out.LastRun = &RunInfo{
				Folders:    sum.Folders,
				Indexed:    sum.Indexed,
				Unchanged:  sum.Unchanged,
				Deleted:    sum.Deleted,
				Errors:     len(sum.Errors),
				Warnings:   len(sum.Warnings),
				Cancelled:  sum.Cancelled,
				StartedAt:  formatTime(sum.StartedAt),
				DurationMS: sum.Duration.Milliseconds(),
			}
		}
	}
	return out, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchPhotosHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpGetRecordHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchPhotosHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchPhotosInput) (
	*mcp.CallToolResult,
	*SearchPhotosOutput,
	error,
) {
	out, err := s.searchPhotos(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpGetRecordHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetRecordInput) (
	*mcp.CallToolResult,
	*GetRecordOutput,
	error,
) {
	out, err := s.getRecord(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve runs the server on the given transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !stderrors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func clampLimit(v, def, lo, hi int) int {
	if v <= 0 {
		return def
	}
	return max(lo, min(v, hi))
}

func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
