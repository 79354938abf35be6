package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const resultsPage = `<html><body>
<div class="result">
  <a class="result__a" href="https://duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fapple&rut=abc">Apple Inc.</a>
  <a class="result__snippet">Apple designs consumer electronics.</a>
</div>
<div class="result">
  <a class="result__a" href="https://news.example.org/markets">Market news</a>
  <div class="result__snippet">Latest market headlines.</div>
</div>
<div class="result">
  <span>ad block without anchor</span>
</div>
<div class="result">
  <a class="result__a" href="https://third.example.com/">Third</a>
</div>
</body></html>`

// setupTestServer creates a test server and a Client configured to use it.
func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	c := &Client{
		client:  resty.New().SetBaseURL(server.URL),
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}
	return c, server
}

func TestSearch(t *testing.T) {
	t.Run("ExtractsResultTriples", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "apple stock", r.PostForm.Get("q"))
			_, _ = w.Write([]byte(resultsPage))
		})
		c, server := setupTestServer(handler)
		defer server.Close()

		results := c.Search(context.Background(), "apple stock", 5)

		assert.Len(t, results, 3)
		assert.Equal(t, "Apple Inc.", results[0].Title)
		// Redirect-wrapped URL resolved to its real target.
		assert.Equal(t, "https://example.com/apple", results[0].URL)
		assert.Equal(t, "Apple designs consumer electronics.", results[0].Snippet)
		// div-form snippet also extracted.
		assert.Equal(t, "Latest market headlines.", results[1].Snippet)
		assert.Equal(t, "https://news.example.org/markets", results[1].URL)
		// Result without a snippet degrades to empty string.
		assert.Equal(t, "", results[2].Snippet)
	})

	t.Run("HonorsResultLimit", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(resultsPage))
		})
		c, server := setupTestServer(handler)
		defer server.Close()

		results := c.Search(context.Background(), "apple", 1)

		assert.Len(t, results, 1)
	})

	t.Run("EmptyQuerySkipsTheNetwork", func(t *testing.T) {
		calls := 0
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
		})
		c, server := setupTestServer(handler)
		defer server.Close()

		results := c.Search(context.Background(), "   ", 5)

		assert.Empty(t, results)
		assert.Equal(t, 0, calls)
	})

	t.Run("ServerErrorDegradesToEmpty", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		c, server := setupTestServer(handler)
		defer server.Close()

		results := c.Search(context.Background(), "apple", 5)

		assert.Empty(t, results)
	})

	t.Run("UnreachableServerDegradesToEmpty", func(t *testing.T) {
		c, server := setupTestServer(http.NotFoundHandler())
		server.Close() // Close up front so the request fails.

		results := c.Search(context.Background(), "apple", 5)

		assert.Empty(t, results)
	})

	t.Run("ResultCountClampedToUpperBound", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(resultsPage))
		})
		c, server := setupTestServer(handler)
		defer server.Close()

		// Requesting far more than allowed still works, capped by what the
		// page offers.
		results := c.Search(context.Background(), "apple", 500)

		assert.Len(t, results, 3)
	})
}

func TestResolveRedirect(t *testing.T) {
	assert.Equal(t, "https://example.com/x",
		resolveRedirect("https://duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fx"))
	// Non-redirect links pass through.
	assert.Equal(t, "https://example.com/direct",
		resolveRedirect("https://example.com/direct"))
	// Redirect without a target passes through.
	assert.Equal(t, "https://duckduckgo.com/l/?other=1",
		resolveRedirect("https://duckduckgo.com/l/?other=1"))
}
