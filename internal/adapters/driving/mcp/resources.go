package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

const (
	uriScheme = "kgraph://"

	listLimit = 100
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "graphs",
		Name:        "graphs",
		Description: "Recently generated knowledge graphs with their status",
		MIMEType:    "application/json",
	}, s.handleGraphsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "graphs/{uuid}",
		Name:        "graph",
		Description: "Nodes and links of one knowledge graph",
		MIMEType:    "application/json",
	}, s.handleGraphResource)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (s *Server) handleGraphsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	recs, err := s.ports.Graphs.List(ctx, listLimit)
	if err != nil {
		return nil, fmt.Errorf("listing graphs: %w", err)
	}

	type graphInfo struct {
		UUID   string `json:"uuid"`
		Title  string `json:"title"`
		Status string `json:"status"`
		URI    string `json:"uri"`
	}
	infos := make([]graphInfo, len(recs))
	for i, r := range recs {
		infos[i] = graphInfo{UUID: r.UUID, Title: r.Title, Status: r.Status, URI: uriScheme + "graphs/" + r.UUID}
	}
	return jsonResource(req.Params.URI, infos)
}

func (s *Server) handleGraphResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id := extractGraphID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	g, err := s.ports.Graphs.Graph(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("loading graph %s: %w", id, err)
	}
	return jsonResource(req.Params.URI, g)
}

// extractGraphID extracts the id from a URI like kgraph://graphs/{uuid}.
func extractGraphID(uri string) string {
	const prefix = uriScheme + "graphs/"
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
