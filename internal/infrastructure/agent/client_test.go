package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchforge/pitch-builder-service/internal/core/services/generation"
	"github.com/pitchforge/pitch-builder-service/internal/pkg/config"
)

func testClient(baseURL string) *Client {
	return NewClient(&config.AgentConfig{
		BaseURL:          baseURL,
		APIKey:           "test-key",
		PitchWorkflow:    "Master_Agent_V1",
		GuidanceWorkflow: "Guidance_Agent_V1",
		RequestTimeout:   5,
	}, nil)
}

func TestSubmitPitch_ReturnsExecutionID(t *testing.T) {
	var gotPath, gotKey, gotLabel string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-KEY")

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotLabel, _ = body["workflow_label_name"].(string)

		vars, ok := body["input_variables"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "Policy Officer", vars["roleName"])
		assert.Equal(t, float64(650), vars["pitchWordLimit"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":                       true,
			"workflow_version_execution_id": 48213,
		})
	}))
	defer server.Close()

	client := testClient(server.URL)
	token, err := client.SubmitPitch(context.Background(), generation.PitchRequest{
		RoleName:       "Policy Officer",
		PitchWordLimit: 650,
		AgentVersion:   "v2_star",
	})

	require.NoError(t, err)
	assert.Equal(t, "48213", token)
	assert.Equal(t, "/workflows/Master_Agent_V1/run", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "v2_star", gotLabel)
}

func TestSubmitPitch_RejectedRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "workflow not found",
		})
	}))
	defer server.Close()

	_, err := testClient(server.URL).SubmitPitch(context.Background(), generation.PitchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow not found")
}

func TestSubmitPitch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testClient(server.URL).SubmitPitch(context.Background(), generation.PitchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestPollPitch_PendingThenDone(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7001", r.URL.Query().Get("workflow_version_execution_id"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		json.NewEncoder(w).Encode("Here is your pitch.")
	}))
	defer server.Close()

	client := testClient(server.URL)
	ctx := context.Background()

	result, err := client.PollPitch(ctx, "7001")
	require.NoError(t, err)
	assert.False(t, result.Done)

	result, err = client.PollPitch(ctx, "7001")
	require.NoError(t, err)
	assert.False(t, result.Done)

	result, err = client.PollPitch(ctx, "7001")
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, "Here is your pitch.", result.Content)
}

func TestPollPitch_ObjectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"output": "Pitch from object body."})
	}))
	defer server.Close()

	result, err := testClient(server.URL).PollPitch(context.Background(), "7002")
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, "Pitch from object body.", result.Content)
}

func TestPollPitch_EmptyBodyIsPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result, err := testClient(server.URL).PollPitch(context.Background(), "7003")
	require.NoError(t, err)
	assert.False(t, result.Done)
}

func TestParseResultBody(t *testing.T) {
	assert.Equal(t, "plain text", parseResultBody([]byte("plain text")))
	assert.Equal(t, "quoted", parseResultBody([]byte(`"quoted"`)))
	assert.Equal(t, "from result", parseResultBody([]byte(`{"result": "from result"}`)))
	assert.Empty(t, parseResultBody([]byte("null")))
	assert.Empty(t, parseResultBody([]byte("")))
	assert.Empty(t, parseResultBody([]byte(`{"status": "running"}`)))
}
