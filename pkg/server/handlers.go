package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/duynguyendang/lmerec/internal/manager"
	"github.com/duynguyendang/lmerec/pkg/common/errors"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/extend"
	"github.com/gin-gonic/gin"
)

// ModelNode is a node of the model a client is editing.
type ModelNode struct {
	URI string `json:"uri"`
	// Literal nodes are never used as anchors.
	Literal bool `json:"literal,omitempty"`
}

// ModelTriple is an edge of the model a client is editing.
type ModelTriple struct {
	Subject   string `json:"s"`
	Predicate string `json:"p"`
	Object    string `json:"o"`
}

// RecommendationRequest carries a whole model.
type RecommendationRequest struct {
	Nodes     []ModelNode   `json:"nodes"`
	Triples   []ModelTriple `json:"triples"`
	PerAnchor int           `json:"per_anchor,omitempty"`
}

// AnchorRecommendations groups the suggestions of one model node.
type AnchorRecommendations struct {
	Anchor      string              `json:"anchor"`
	Suggestions []extend.Suggestion `json:"suggestions"`
}

// RecommendationResponse is returned by POST /v1/recommendation.
type RecommendationResponse struct {
	Generation      string                  `json:"generation"`
	Recommendations []AnchorRecommendations `json:"recommendations"`
}

// handleRecommendation suggests extensions for every class node of a model,
// skipping triples the model already contains.
func (s *Server) handleRecommendation(c *gin.Context) {
	var req RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid request body", err))
		return
	}
	perAnchor := req.PerAnchor
	if perAnchor <= 0 {
		perAnchor = s.opts.PerAnchorLimit
	}
	existing := make(map[string]bool, len(req.Triples))
	for _, t := range req.Triples {
		existing[extend.TripleKey(t.Subject, t.Predicate, t.Object)] = true
	}

	var queries []manager.Query
	seen := make(map[string]bool, len(req.Nodes))
	for _, node := range req.Nodes {
		if node.Literal || node.URI == "" || seen[node.URI] {
			continue
		}
		seen[node.URI] = true
		queries = append(queries, manager.Query{
			Anchor:   node.URI,
			Limit:    s.manager.Options().CandidateCount,
			Existing: existing,
		})
	}

	gen, results, err := s.manager.RecommendModel(c.Request.Context(), queries)
	if err != nil {
		handleError(c, err)
		return
	}
	resp := RecommendationResponse{Generation: gen, Recommendations: []AnchorRecommendations{}}
	for i, suggestions := range results {
		if len(suggestions) == 0 {
			continue
		}
		if len(suggestions) > perAnchor {
			suggestions = suggestions[:perAnchor]
		}
		resp.Recommendations = append(resp.Recommendations, AnchorRecommendations{
			Anchor:      queries[i].Anchor,
			Suggestions: suggestions,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// handleExtensions suggests extensions for a single anchor.
func (s *Server) handleExtensions(c *gin.Context) {
	var req manager.Query
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid request body", err))
		return
	}
	if strings.TrimSpace(req.Anchor) == "" {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Missing anchor", nil))
		return
	}

	suggestions, err := s.manager.Recommend(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	if suggestions == nil {
		suggestions = []extend.Suggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"anchor": req.Anchor, "suggestions": suggestions})
}

// handleCandidates ranks classes worth adding to a model.
func (s *Server) handleCandidates(c *gin.Context) {
	var req struct {
		Model []extend.ModelNode `json:"model"`
		Limit int                `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid request body", err))
		return
	}

	nodes, err := s.manager.RecommendNodes(req.Model, req.Limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": nodes})
}

// handleLinks predicts predicates between two classes.
func (s *Server) handleLinks(c *gin.Context) {
	var req struct {
		Anchor    string `json:"anchor"`
		Candidate string `json:"candidate"`
		Limit     int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid request body", err))
		return
	}
	if req.Anchor == "" || req.Candidate == "" {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Missing anchor/candidate", nil))
		return
	}

	links, err := s.manager.PredictLink(req.Anchor, req.Candidate, req.Limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links})
}

// handleLookup reports whether a URI is known and suggests close matches.
func (s *Server) handleLookup(c *gin.Context) {
	uri := c.Query("uri")
	if uri == "" {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Missing uri", nil))
		return
	}

	kind := dict.KindClass
	switch c.DefaultQuery("kind", "class") {
	case "class":
	case "predicate":
		kind = dict.KindPredicate
	default:
		handleError(c, errors.NewAppError(http.StatusBadRequest, "kind must be class or predicate", nil))
		return
	}

	k := 5
	if kStr := c.Query("k"); kStr != "" {
		v, err := strconv.Atoi(kStr)
		if err != nil || v <= 0 {
			handleError(c, errors.NewAppError(http.StatusBadRequest, "k must be a positive integer", err))
			return
		}
		k = v
	}

	known, err := s.manager.Known(kind, uri)
	if err != nil {
		handleError(c, err)
		return
	}
	matches, err := s.manager.Suggest(kind, uri, k)
	if err != nil {
		handleError(c, err)
		return
	}
	if matches == nil {
		matches = []dict.Match{}
	}
	c.JSON(http.StatusOK, gin.H{"uri": uri, "kind": kind.String(), "known": known, "matches": matches})
}

// handleRebuild retrains all artifacts. With ?wait=true the request blocks
// until the new generation is serving.
func (s *Server) handleRebuild(c *gin.Context) {
	if c.Query("wait") == "true" {
		b, err := s.manager.Rebuild(c.Request.Context())
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"generation": b.Generation, "meta": b.Meta})
		return
	}

	if s.manager.Rebuilding() {
		handleError(c, manager.ErrRebuildInProgress)
		return
	}
	go func() {
		if _, err := s.manager.Rebuild(context.Background()); err != nil {
			slog.Error("background rebuild failed", "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "rebuild started"})
}

// handleGeneration describes the serving generation.
func (s *Server) handleGeneration(c *gin.Context) {
	b, err := s.manager.Current()
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"generation": b.Generation,
		"meta":       b.Meta,
		"rebuilding": s.manager.Rebuilding(),
		"options":    s.manager.Options(),
	})
}

func handleError(c *gin.Context, err error) {
	appErr := errors.MapError(err)
	if appErr.Code >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(appErr.Code, gin.H{"error": appErr.Message})
}
