package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"toolgate/internal/config"
	"toolgate/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "toolgate-aggregator"
	serverVersion = "1.0.0"

	shutdownTimeout = 5 * time.Second
)

// Server exposes the aggregated catalog over MCP. Connected agents see one
// server with the filtered tool set; calls are dispatched to the owning
// upstream transparently.
type Server struct {
	manager *Manager
	config  config.AggregatorConfig

	mu                   sync.Mutex
	server               *server.MCPServer
	sseServer            *server.SSEServer
	streamableHTTPServer *server.StreamableHTTPServer
	exposed              map[string]bool

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewServer creates an MCP server serving the given manager's catalog.
func NewServer(manager *Manager, cfg config.AggregatorConfig) *Server {
	return &Server{
		manager: manager,
		config:  cfg,
		exposed: make(map[string]bool),
	}
}

// Start registers the current catalog, begins following catalog updates, and
// starts the configured transport listener.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return fmt.Errorf("aggregator server already started")
	}

	s.ctx, s.cancelFunc = context.WithCancel(ctx)

	s.server = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
	)
	s.mu.Unlock()

	s.syncTools()

	s.wg.Add(1)
	go s.monitorCatalogUpdates()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	switch s.config.Transport {
	case config.TransportSSE:
		logging.Info("Server", "Starting MCP aggregator server with SSE transport on %s", addr)
		baseURL := fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
		s.sseServer = server.NewSSEServer(
			s.server,
			server.WithBaseURL(baseURL),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
			server.WithKeepAlive(true),
			server.WithKeepAliveInterval(30*time.Second),
		)
		sseServer := s.sseServer
		go func() {
			if err := sseServer.Start(addr); err != nil && err != http.ErrServerClosed {
				logging.Error("Server", err, "SSE server error")
			}
		}()

	case config.TransportStreamableHTTP:
		fallthrough
	default:
		logging.Info("Server", "Starting MCP aggregator server with streamable-http transport on %s", addr)
		s.streamableHTTPServer = server.NewStreamableHTTPServer(s.server)
		streamableServer := s.streamableHTTPServer
		go func() {
			if err := streamableServer.Start(addr); err != nil && err != http.ErrServerClosed {
				logging.Error("Server", err, "Streamable HTTP server error")
			}
		}()
	}

	return nil
}

// Stop shuts down the transport listener and stops following catalog updates.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.server == nil {
		s.mu.Unlock()
		return fmt.Errorf("aggregator server not started")
	}

	logging.Info("Server", "Stopping MCP aggregator server")

	cancelFunc := s.cancelFunc
	sseServer := s.sseServer
	streamableServer := s.streamableHTTPServer
	s.mu.Unlock()

	if cancelFunc != nil {
		cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if sseServer != nil {
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("Server", err, "Error shutting down SSE server")
		}
	}
	if streamableServer != nil {
		if err := streamableServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("Server", err, "Error shutting down streamable HTTP server")
		}
	}

	s.wg.Wait()

	s.mu.Lock()
	s.server = nil
	s.sseServer = nil
	s.streamableHTTPServer = nil
	s.exposed = make(map[string]bool)
	s.mu.Unlock()

	return nil
}

// GetEndpoint returns the URL agents connect to.
func (s *Server) GetEndpoint() string {
	base := fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
	if s.config.Transport == config.TransportSSE {
		return base + "/sse"
	}
	return base + "/mcp"
}

// monitorCatalogUpdates re-registers tools whenever the manager publishes a
// new catalog.
func (s *Server) monitorCatalogUpdates() {
	defer s.wg.Done()

	updateChan := s.manager.GetUpdateChannel()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-updateChan:
			s.syncTools()
		}
	}
}

// syncTools diffs the published catalog against the tools currently exposed
// and applies the difference. Connected clients receive list-changed
// notifications from the underlying MCP server.
func (s *Server) syncTools() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return
	}

	tools := s.manager.ListAvailableTools()

	active := make(map[string]bool, len(tools))
	var toAdd []server.ServerTool
	for _, tool := range tools {
		active[tool.Name] = true
		if s.exposed[tool.Name] {
			continue
		}
		toAdd = append(toAdd, server.ServerTool{
			Tool:    tool,
			Handler: s.makeToolHandler(tool.Name),
		})
	}

	var toRemove []string
	for name := range s.exposed {
		if !active[name] {
			toRemove = append(toRemove, name)
		}
	}

	if len(toRemove) > 0 {
		s.server.DeleteTools(toRemove...)
		for _, name := range toRemove {
			delete(s.exposed, name)
		}
	}
	if len(toAdd) > 0 {
		s.server.AddTools(toAdd...)
		for _, st := range toAdd {
			s.exposed[st.Tool.Name] = true
		}
	}

	if len(toAdd) > 0 || len(toRemove) > 0 {
		logging.Info("Server", "Tool registration updated: %d added, %d removed, %d exposed",
			len(toAdd), len(toRemove), len(s.exposed))
	}
}

// makeToolHandler builds the handler forwarding one exposed tool to the
// dispatcher.
func (s *Server) makeToolHandler(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]interface{}
		if req.Params.Arguments != nil {
			if argsMap, ok := req.Params.Arguments.(map[string]interface{}); ok {
				args = argsMap
			}
		}

		result, err := s.manager.Dispatch(ctx, name, args)
		if err != nil {
			// Upstream application failures carry the original result;
			// forward it unchanged so the agent sees what the tool said.
			var upstreamErr *UpstreamError
			if errors.As(err, &upstreamErr) && result != nil {
				return result, nil
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result, nil
	}
}
