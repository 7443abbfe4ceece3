package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOllama(t *testing.T, response string, status int) (*httptest.Server, *generateRequest) {
	t.Helper()
	captured := &generateRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(captured))

		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(generateResponse{Response: response})
		}
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestGenerate_ReturnsSQL(t *testing.T) {
	t.Parallel()
	srv, captured := fakeOllama(t, "SELECT id FROM leads", http.StatusOK)
	c := NewClient(srv.URL, "llama3.1")

	gen, err := c.Generate(context.Background(), "show me leads", "Table: leads")
	require.NoError(t, err)
	assert.True(t, gen.CanAnswer)
	assert.Equal(t, "SELECT id FROM leads", gen.SQL)

	assert.Equal(t, "llama3.1", captured.Model)
	assert.Equal(t, "show me leads", captured.Prompt)
	assert.Contains(t, captured.System, "Table: leads")
	assert.False(t, captured.Stream)
	assert.Zero(t, captured.Options.Temperature)
}

func TestGenerate_StripsMarkdownFences(t *testing.T) {
	t.Parallel()
	srv, _ := fakeOllama(t, "```sql\nSELECT id FROM leads\n```", http.StatusOK)
	c := NewClient(srv.URL, "llama3.1")

	gen, err := c.Generate(context.Background(), "q", "schema")
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM leads", gen.SQL)
}

func TestGenerate_CannotAnswer(t *testing.T) {
	t.Parallel()
	srv, _ := fakeOllama(t, "CANNOT_ANSWER", http.StatusOK)
	c := NewClient(srv.URL, "llama3.1")

	gen, err := c.Generate(context.Background(), "what is love?", "schema")
	require.NoError(t, err)
	assert.False(t, gen.CanAnswer)
	assert.Empty(t, gen.SQL)
}

func TestGenerate_CannotAnswerCaseInsensitive(t *testing.T) {
	t.Parallel()
	srv, _ := fakeOllama(t, "cannot_answer", http.StatusOK)
	c := NewClient(srv.URL, "llama3.1")

	gen, err := c.Generate(context.Background(), "q", "schema")
	require.NoError(t, err)
	assert.False(t, gen.CanAnswer)
}

func TestGenerate_EmptyResponse(t *testing.T) {
	t.Parallel()
	srv, _ := fakeOllama(t, "   \n  ", http.StatusOK)
	c := NewClient(srv.URL, "llama3.1")

	_, err := c.Generate(context.Background(), "q", "schema")
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerate_ModelNotFound(t *testing.T) {
	t.Parallel()
	srv, _ := fakeOllama(t, "", http.StatusNotFound)
	c := NewClient(srv.URL, "missing-model")

	_, err := c.Generate(context.Background(), "q", "schema")
	require.ErrorIs(t, err, ErrModelNotFound)
	assert.Contains(t, err.Error(), "ollama pull missing-model")
}

func TestGenerate_ServerError(t *testing.T) {
	t.Parallel()
	srv, _ := fakeOllama(t, "", http.StatusInternalServerError)
	c := NewClient(srv.URL, "llama3.1")

	_, err := c.Generate(context.Background(), "q", "schema")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestGenerate_Unreachable(t *testing.T) {
	t.Parallel()
	c := NewClient("http://127.0.0.1:1", "llama3.1")

	_, err := c.Generate(context.Background(), "q", "schema")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCleanOutput(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"  SELECT 1  ", "SELECT 1"},
		{"```sql\nSELECT 1\n```", "SELECT 1"},
		{"```\nSELECT 1\n```", "SELECT 1"},
		{"```SQL\nSELECT 1\n```", "SELECT 1"},
		{"SELECT id\n\nFROM leads", "SELECT id\nFROM leads"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cleanOutput(tc.in), "input: %q", tc.in)
	}
}
