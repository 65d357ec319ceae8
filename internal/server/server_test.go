package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypernars/internal/config"
	"hypernars/internal/explain"
	"hypernars/internal/nar"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	r, err := nar.New(config.Default())
	require.NoError(t, err)
	return NewServer(r)
}

func TestHandleNAL(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()

	_, resp, err := s.handleNAL(ctx, nil, NALRequest{Statement: "<a --> b>.", Steps: 5})
	require.NoError(t, err)
	assert.Equal(t, "Inheritance(a,b)", resp.EdgeID)

	_, _, err = s.handleNAL(ctx, nil, NALRequest{})
	assert.Error(t, err)

	_, _, err = s.handleNAL(ctx, nil, NALRequest{Statement: "<a --> b."})
	assert.Error(t, err)
}

func TestHandleQueryAndBeliefs(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()

	_, _, err := s.handleNAL(ctx, nil, NALRequest{Statement: "<sparrow --> bird>."})
	require.NoError(t, err)

	_, qresp, err := s.handleQuery(ctx, nil, QueryRequest{Pattern: "<$x --> bird>?"})
	require.NoError(t, err)
	require.Len(t, qresp.Matches, 1)
	assert.Equal(t, "sparrow", qresp.Matches[0].Bindings["x"])

	_, bresp, err := s.handleBeliefs(ctx, nil, BeliefsRequest{EdgeID: "Inheritance(sparrow,bird)"})
	require.NoError(t, err)
	require.Len(t, bresp.Beliefs, 1)
}

func TestHandleAskDirect(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()

	_, _, err := s.handleNAL(ctx, nil, NALRequest{Statement: "<sky --> blue>. %1.0;0.9%"})
	require.NoError(t, err)

	_, resp, err := s.handleAsk(ctx, nil, AskRequest{
		Question:       "<sky --> blue>?",
		TimeoutMS:      2000,
		MinExpectation: 0.8,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Answer)
	assert.Equal(t, []string{"sky", "blue"}, resp.Answer.Args)
}

func TestHandleAskTimeout(t *testing.T) {
	s := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := s.handleAsk(ctx, nil, AskRequest{
		Question:  "<moon --> cheese>?",
		TimeoutMS: 100,
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Answer)
	assert.Contains(t, resp.Error, "timed out")
}

func TestHandleExplain(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()

	_, _, err := s.handleNAL(ctx, nil, NALRequest{Statement: "<a --> b>.", Steps: 5})
	require.NoError(t, err)
	_, _, err = s.handleNAL(ctx, nil, NALRequest{Statement: "<b --> c>.", Steps: 20})
	require.NoError(t, err)

	_, resp, err := s.handleExplain(ctx, nil, ExplainRequest{
		EdgeID: "Inheritance(a,c)",
		Format: explain.FormatConcise,
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Explanation, "inheritance-transitivity")
}

func TestHandleSaveAndLoadState(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()

	_, _, err := s.handleNAL(ctx, nil, NALRequest{Statement: "<a --> b>."})
	require.NoError(t, err)

	_, saved, err := s.handleSaveState(ctx, nil, EmptyRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, saved.State)

	_, cleared, err := s.handleClearState(ctx, nil, EmptyRequest{})
	require.NoError(t, err)
	assert.Equal(t, "cleared", cleared.Status)

	_, loaded, err := s.handleLoadState(ctx, nil, LoadStateRequest{State: saved.State})
	require.NoError(t, err)
	assert.Equal(t, "loaded", loaded.Status)

	_, bresp, err := s.handleBeliefs(ctx, nil, BeliefsRequest{EdgeID: "Inheritance(a,b)"})
	require.NoError(t, err)
	assert.Len(t, bresp.Beliefs, 1)

	_, _, err = s.handleLoadState(ctx, nil, LoadStateRequest{State: "!!not-base64!!"})
	assert.Error(t, err)
}

func TestHandleMetricsAndRun(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()

	_, _, err := s.handleNAL(ctx, nil, NALRequest{Statement: "<a --> b>."})
	require.NoError(t, err)

	_, runResp, err := s.handleRun(ctx, nil, RunRequest{Steps: 10})
	require.NoError(t, err)
	assert.NotZero(t, runResp.StepsRun)

	_, metrics, err := s.handleMetrics(ctx, nil, EmptyRequest{})
	require.NoError(t, err)
	assert.NotZero(t, metrics.EdgeCount)
}
