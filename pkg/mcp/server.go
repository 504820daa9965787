package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/duynguyendang/lmerec/internal/manager"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the recommender to MCP clients.
type MCPServer struct {
	manager *manager.BundleManager
}

// New registers the recommender's resources and tools on a fresh MCP server.
func New(mgr *manager.BundleManager) *server.MCPServer {
	s := server.NewMCPServer(
		"LMERec",
		"0.1.0",
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
	)
	ms := &MCPServer{manager: mgr}

	// --- Resources ---

	s.AddResource(
		mcp.NewResource(
			"lmerec://generation",
			"Serving Generation",
			mcp.WithResourceDescription("Metadata of the artifact generation currently serving"),
			mcp.WithMIMEType("application/json"),
		),
		ms.handleGeneration,
	)

	// --- Tools ---

	s.AddTool(
		mcp.NewTool(
			"recommend_extensions",
			mcp.WithDescription("Suggest (anchor, predicate, class) triples to extend a semantic model, ranked by confidence."),
			mcp.WithString("anchor", mcp.Required(), mcp.Description("URI of the class to extend")),
			mcp.WithString("context", mcp.Description("Comma separated URIs of further classes in the model")),
			mcp.WithNumber("limit", mcp.Description("Max number of suggestions (default 3)")),
		),
		ms.handleRecommendExtensions,
	)

	s.AddTool(
		mcp.NewTool(
			"predict_link",
			mcp.WithDescription("Predict the predicates most often used between two classes."),
			mcp.WithString("anchor", mcp.Required(), mcp.Description("Subject class URI")),
			mcp.WithString("candidate", mcp.Required(), mcp.Description("Object class URI")),
			mcp.WithNumber("limit", mcp.Description("Max number of predicates (default 3)")),
		),
		ms.handlePredictLink,
	)

	s.AddTool(
		mcp.NewTool(
			"lookup_uri",
			mcp.WithDescription("Check whether a class or predicate URI is known and list close matches."),
			mcp.WithString("uri", mcp.Required(), mcp.Description("URI to look up")),
			mcp.WithString("kind", mcp.Description("class (default) or predicate")),
			mcp.WithNumber("limit", mcp.Description("Max number of matches (default 5)")),
		),
		ms.handleLookupURI,
	)

	return s
}

// Run serves MCP on stdio.
func Run(ctx context.Context, mgr *manager.BundleManager) error {
	s := New(mgr)
	slog.Info("Starting MCP server on Stdio")
	return server.ServeStdio(s)
}

// --- Resource Handlers ---

func (ms *MCPServer) handleGeneration(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	b, err := ms.manager.Current()
	if err != nil {
		return nil, err
	}
	jsonBytes, err := json.MarshalIndent(b.Meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meta: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}

// --- Tool Handlers ---

func (ms *MCPServer) handleRecommendExtensions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	anchor, ok := args["anchor"].(string)
	if !ok || anchor == "" {
		return mcp.NewToolResultError("anchor argument required"), nil
	}

	q := manager.Query{Anchor: anchor}
	if raw, ok := args["context"].(string); ok {
		for _, uri := range strings.Split(raw, ",") {
			if uri = strings.TrimSpace(uri); uri != "" {
				q.Context = append(q.Context, uri)
			}
		}
	}
	if l, ok := args["limit"].(float64); ok {
		q.Limit = int(l)
	}

	suggestions, err := ms.manager.Recommend(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recommendation failed: %v", err)), nil
	}
	if len(suggestions) == 0 {
		return mcp.NewToolResultText(ms.noResultHint(anchor)), nil
	}

	var formatted []string
	for _, s := range suggestions {
		line := fmt.Sprintf("%s -[%s]-> %s [%s] (confidence %.3f, link %.3f, node %.3f)",
			s.Subject, s.Predicate, s.Object, s.Kind, s.Confidence, s.LinkFrequency, s.NodeSimilarity)
		if s.PredicateLabel != "" || s.ObjectLabel != "" {
			line += fmt.Sprintf(" %q / %q", s.PredicateLabel, s.ObjectLabel)
		}
		formatted = append(formatted, line)
	}
	return mcp.NewToolResultText(strings.Join(formatted, "\n")), nil
}

func (ms *MCPServer) handlePredictLink(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	anchor, _ := args["anchor"].(string)
	candidate, _ := args["candidate"].(string)
	if anchor == "" || candidate == "" {
		return mcp.NewToolResultError("anchor and candidate arguments required"), nil
	}
	limit := 0
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}

	links, err := ms.manager.PredictLink(anchor, candidate, limit)
	if errors.Is(err, dict.ErrNotFound) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("link prediction failed: %v", err)), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("No predicate observed between these classes."), nil
	}

	var formatted []string
	for _, l := range links {
		formatted = append(formatted, fmt.Sprintf("%s (%.3f)", l.Predicate, l.Frequency))
	}
	return mcp.NewToolResultText(strings.Join(formatted, "\n")), nil
}

func (ms *MCPServer) handleLookupURI(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	uri, ok := args["uri"].(string)
	if !ok || uri == "" {
		return mcp.NewToolResultError("uri argument required"), nil
	}
	kind := dict.KindClass
	if k, _ := args["kind"].(string); k == "predicate" {
		kind = dict.KindPredicate
	}
	limit := 5
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	known, err := ms.manager.Known(kind, uri)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	matches, err := ms.manager.Suggest(kind, uri, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	if !known && len(matches) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Unknown %s, no similar URIs.", kind)), nil
	}

	var formatted []string
	if known {
		line := fmt.Sprintf("Known %s.", kind)
		for i, m := range matches {
			if m.URI == uri {
				line = fmt.Sprintf("Known %s (id %d).", kind, m.ID)
				matches = append(matches[:i:i], matches[i+1:]...)
				break
			}
		}
		formatted = append(formatted, line)
	}
	for _, m := range matches {
		formatted = append(formatted, fmt.Sprintf("%s (%.2f)", m.URI, m.Score))
	}
	return mcp.NewToolResultText(strings.Join(formatted, "\n")), nil
}

// noResultHint explains an empty recommendation, suggesting close URIs for
// unknown anchors.
func (ms *MCPServer) noResultHint(anchor string) string {
	matches, err := ms.manager.Suggest(dict.KindClass, anchor, 3)
	if err != nil || len(matches) == 0 {
		return "No suggestions found."
	}
	if matches[0].URI == anchor {
		return "No suggestions found."
	}
	uris := make([]string, len(matches))
	for i, m := range matches {
		uris[i] = m.URI
	}
	return fmt.Sprintf("Unknown anchor. Did you mean: %s?", strings.Join(uris, ", "))
}
