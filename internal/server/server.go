// Package server exposes the reasoning core over the Model Context Protocol.
//
// Tools mirror the programmatic API surface: statement ingestion, questions,
// pattern queries, belief inspection, contradiction management, explanation,
// stepping, and state save/load. All responses are JSON structures delivered
// over stdio transport.
package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"hypernars/internal/explain"
	"hypernars/internal/nar"
	"hypernars/internal/types"
	"hypernars/internal/validation"
)

// Server wraps a reasoner with MCP tool handlers.
type Server struct {
	reasoner *nar.Reasoner
}

// NewServer creates a server over the reasoner.
func NewServer(r *nar.Reasoner) *Server {
	return &Server{reasoner: r}
}

// RegisterTools installs every tool on the MCP server.
func (s *Server) RegisterTools(mcpServer *mcp.Server) {
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "nal",
		Description: "Ingest a statement in the NAL statement language (e.g. \"<a --> b>. %0.9;0.8%\")",
	}, s.handleNAL)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "ask",
		Description: "Ask a question and wait for an answer or timeout",
	}, s.handleAsk)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "query",
		Description: "Match a pattern with variables against the belief store",
	}, s.handleQuery)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "beliefs",
		Description: "List the beliefs held on an edge",
	}, s.handleBeliefs)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "explain",
		Description: "Explain the derivation of an edge (formats: detailed, concise, technical, json, story, justification)",
	}, s.handleExplain)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "contradictions",
		Description: "List unresolved contradictions",
	}, s.handleContradictions)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "analyze-contradiction",
		Description: "Analyze a recorded contradiction and suggest a strategy",
	}, s.handleAnalyzeContradiction)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "resolve-contradiction",
		Description: "Resolve a contradiction with a named strategy",
	}, s.handleResolveContradiction)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "run",
		Description: "Run up to n reasoning steps",
	}, s.handleRun)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "clear-state",
		Description: "Reset all reasoning state",
	}, s.handleClearState)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "save-state",
		Description: "Serialize reasoner state to a base64 blob",
	}, s.handleSaveState)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "load-state",
		Description: "Restore reasoner state from a base64 blob",
	}, s.handleLoadState)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get-metrics",
		Description: "Get reasoner health metrics",
	}, s.handleMetrics)
}

type NALRequest struct {
	Statement string `json:"statement"`
	Source    string `json:"source,omitempty"`
	Context   string `json:"context,omitempty"`
	Steps     int    `json:"steps,omitempty"`
}

type NALResponse struct {
	EdgeID string `json:"edge_id"`
	Steps  int    `json:"steps_run"`
}

func (s *Server) handleNAL(ctx context.Context, req *mcp.CallToolRequest, input NALRequest) (*mcp.CallToolResult, *NALResponse, error) {
	if input.Statement == "" {
		return nil, nil, fmt.Errorf("statement is required")
	}
	id, err := s.reasoner.NAL(input.Statement, nar.NALOptions{
		Source:  input.Source,
		Context: input.Context,
	})
	if err != nil {
		return nil, nil, err
	}
	steps := 0
	if input.Steps > 0 {
		steps = s.reasoner.Run(input.Steps)
	}
	return nil, &NALResponse{EdgeID: id, Steps: steps}, nil
}

type AskRequest struct {
	Question       string  `json:"question"`
	TimeoutMS      int     `json:"timeout_ms,omitempty"`
	MinExpectation float64 `json:"min_expectation,omitempty"`
}

type AskResponse struct {
	Answer *types.Answer `json:"answer,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func (s *Server) handleAsk(ctx context.Context, req *mcp.CallToolRequest, input AskRequest) (*mcp.CallToolResult, *AskResponse, error) {
	if input.Question == "" {
		return nil, nil, fmt.Errorf("question is required")
	}
	timeout := time.Duration(input.TimeoutMS) * time.Millisecond
	future, err := s.reasoner.Ask(input.Question, nar.AskOptions{
		Timeout:        timeout,
		MinExpectation: input.MinExpectation,
	})
	if err != nil {
		return nil, nil, err
	}

	// Drive the reasoner until the future resolves; the deadline sweep fires
	// from inside the step loop.
	for {
		select {
		case out := <-future.Done():
			if out.Err != nil {
				return nil, &AskResponse{Error: out.Err.Error()}, nil
			}
			return nil, &AskResponse{Answer: out.Answer}, nil
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}
		if s.reasoner.Run(50) == 0 {
			s.reasoner.ExpireQuestions()
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type QueryRequest struct {
	Pattern        string  `json:"pattern"`
	Limit          int     `json:"limit,omitempty"`
	MinExpectation float64 `json:"min_expectation,omitempty"`
}

type QueryResponse struct {
	Matches []nar.QueryMatch `json:"matches"`
}

func (s *Server) handleQuery(ctx context.Context, req *mcp.CallToolRequest, input QueryRequest) (*mcp.CallToolResult, *QueryResponse, error) {
	matches, err := s.reasoner.Query(input.Pattern, nar.QueryOptions{
		Limit:          input.Limit,
		MinExpectation: input.MinExpectation,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, &QueryResponse{Matches: matches}, nil
}

type BeliefsRequest struct {
	EdgeID string `json:"edge_id"`
}

type BeliefsResponse struct {
	Beliefs []*types.Belief `json:"beliefs"`
}

func (s *Server) handleBeliefs(ctx context.Context, req *mcp.CallToolRequest, input BeliefsRequest) (*mcp.CallToolResult, *BeliefsResponse, error) {
	if input.EdgeID == "" {
		return nil, nil, fmt.Errorf("edge_id is required")
	}
	return nil, &BeliefsResponse{Beliefs: s.reasoner.GetBeliefs(input.EdgeID)}, nil
}

type ExplainRequest struct {
	EdgeID      string `json:"edge_id"`
	Format      string `json:"format,omitempty"`
	Perspective string `json:"perspective,omitempty"`
	Depth       int    `json:"depth,omitempty"`
}

type ExplainResponse struct {
	Explanation string `json:"explanation"`
}

func (s *Server) handleExplain(ctx context.Context, req *mcp.CallToolRequest, input ExplainRequest) (*mcp.CallToolResult, *ExplainResponse, error) {
	if input.EdgeID == "" {
		return nil, nil, fmt.Errorf("edge_id is required")
	}
	out, err := s.reasoner.Explain(input.EdgeID, explain.Options{
		Format:      input.Format,
		Perspective: input.Perspective,
		Depth:       input.Depth,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, &ExplainResponse{Explanation: out}, nil
}

type ContradictionsResponse struct {
	Contradictions []*validation.Record `json:"contradictions"`
}

type EmptyRequest struct{}

func (s *Server) handleContradictions(ctx context.Context, req *mcp.CallToolRequest, input EmptyRequest) (*mcp.CallToolResult, *ContradictionsResponse, error) {
	return nil, &ContradictionsResponse{Contradictions: s.reasoner.GetContradictions()}, nil
}

type AnalyzeContradictionRequest struct {
	EdgeID string `json:"edge_id"`
}

func (s *Server) handleAnalyzeContradiction(ctx context.Context, req *mcp.CallToolRequest, input AnalyzeContradictionRequest) (*mcp.CallToolResult, *validation.Analysis, error) {
	if input.EdgeID == "" {
		return nil, nil, fmt.Errorf("edge_id is required")
	}
	analysis, err := s.reasoner.AnalyzeContradiction(input.EdgeID)
	if err != nil {
		return nil, nil, err
	}
	return nil, analysis, nil
}

type ResolveContradictionRequest struct {
	EdgeID   string `json:"edge_id"`
	Strategy string `json:"strategy"`
}

func (s *Server) handleResolveContradiction(ctx context.Context, req *mcp.CallToolRequest, input ResolveContradictionRequest) (*mcp.CallToolResult, *validation.Resolution, error) {
	if input.EdgeID == "" || input.Strategy == "" {
		return nil, nil, fmt.Errorf("edge_id and strategy are required")
	}
	res, err := s.reasoner.ResolveContradiction(input.EdgeID, input.Strategy)
	if err != nil {
		return nil, nil, err
	}
	return nil, res, nil
}

type RunRequest struct {
	Steps int `json:"steps"`
}

type RunResponse struct {
	StepsRun    int    `json:"steps_run"`
	CurrentStep uint64 `json:"current_step"`
}

func (s *Server) handleRun(ctx context.Context, req *mcp.CallToolRequest, input RunRequest) (*mcp.CallToolResult, *RunResponse, error) {
	if input.Steps <= 0 {
		input.Steps = 1
	}
	steps := s.reasoner.Run(input.Steps)
	return nil, &RunResponse{StepsRun: steps, CurrentStep: s.reasoner.CurrentStep()}, nil
}

type StatusResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleClearState(ctx context.Context, req *mcp.CallToolRequest, input EmptyRequest) (*mcp.CallToolResult, *StatusResponse, error) {
	s.reasoner.ClearState()
	return nil, &StatusResponse{Status: "cleared"}, nil
}

type SaveStateResponse struct {
	State string `json:"state"`
}

func (s *Server) handleSaveState(ctx context.Context, req *mcp.CallToolRequest, input EmptyRequest) (*mcp.CallToolResult, *SaveStateResponse, error) {
	blob, err := s.reasoner.SaveState()
	if err != nil {
		return nil, nil, err
	}
	return nil, &SaveStateResponse{State: base64.StdEncoding.EncodeToString(blob)}, nil
}

type LoadStateRequest struct {
	State string `json:"state"`
}

func (s *Server) handleLoadState(ctx context.Context, req *mcp.CallToolRequest, input LoadStateRequest) (*mcp.CallToolResult, *StatusResponse, error) {
	if input.State == "" {
		return nil, nil, fmt.Errorf("state is required")
	}
	blob, err := base64.StdEncoding.DecodeString(input.State)
	if err != nil {
		return nil, nil, fmt.Errorf("state must be base64: %w", err)
	}
	if err := s.reasoner.LoadState(blob); err != nil {
		return nil, nil, err
	}
	return nil, &StatusResponse{Status: "loaded"}, nil
}

func (s *Server) handleMetrics(ctx context.Context, req *mcp.CallToolRequest, input EmptyRequest) (*mcp.CallToolResult, *nar.Metrics, error) {
	m := s.reasoner.Metrics()
	return nil, &m, nil
}
