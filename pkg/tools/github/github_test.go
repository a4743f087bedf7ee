package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/repositories", r.URL.Path)
		assert.Equal(t, "fastapi", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Write([]byte(`{"total_count": 2, "items": [
			{"full_name": "fastapi/fastapi", "html_url": "https://github.com/fastapi/fastapi", "stargazers_count": 80000, "description": "FastAPI framework"},
			{"full_name": "x/y", "html_url": "https://github.com/x/y", "stargazers_count": 3, "description": null}
		]}`))
	}))
	defer srv.Close()

	tool := &SearchTool{client: NewClient(srv.URL, "secret")}
	out, err := tool.Invoke(context.Background(), map[string]any{"query": "fastapi"})
	require.NoError(t, err)

	assert.Equal(t, 2, out["count"])
	items := out["items"].([]any)
	assert.Equal(t, map[string]any{
		"name":        "fastapi/fastapi",
		"url":         "https://github.com/fastapi/fastapi",
		"stars":       80000,
		"description": "FastAPI framework",
	}, items[0])
	assert.Nil(t, items[1].(map[string]any)["description"])
}

func TestSearchToolPerPageAndAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"items": []}`))
	}))
	defer srv.Close()

	tool := &SearchTool{client: NewClient(srv.URL, "")}
	out, err := tool.Invoke(context.Background(), map[string]any{"query": "go", "per_page": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, 0, out["count"])
}

func TestSearchToolRequiresQuery(t *testing.T) {
	tool := &SearchTool{client: NewClient("http://127.0.0.1:0", "")}
	_, err := tool.Invoke(context.Background(), map[string]any{})
	assert.EqualError(t, err, "query is required for github_search")
}

func TestDetailsTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/fastapi/fastapi", r.URL.Path)
		w.Write([]byte(`{"full_name": "fastapi/fastapi", "html_url": "https://github.com/fastapi/fastapi",
			"stargazers_count": 80000, "forks_count": 7000, "open_issues_count": 40,
			"language": "Python", "description": "FastAPI framework"}`))
	}))
	defer srv.Close()

	tool := &DetailsTool{client: NewClient(srv.URL, "")}
	out, err := tool.Invoke(context.Background(), map[string]any{"full_name": "fastapi/fastapi"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":        "fastapi/fastapi",
		"url":         "https://github.com/fastapi/fastapi",
		"stars":       80000,
		"forks":       7000,
		"open_issues": 40,
		"language":    "Python",
		"description": "FastAPI framework",
	}, out)
}

func TestDetailsToolErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Not Found"}`))
	}))
	defer srv.Close()

	tool := &DetailsTool{client: NewClient(srv.URL, "")}
	_, err := tool.Invoke(context.Background(), map[string]any{"full_name": "nobody/nothing"})
	assert.EqualError(t, err, "github API /repos/nobody/nothing returned 404: Not Found")

	_, err = tool.Invoke(context.Background(), map[string]any{})
	assert.EqualError(t, err, "full_name is required for github_repo_details")
}
