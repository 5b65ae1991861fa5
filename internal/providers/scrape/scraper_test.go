package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/retry"
)

const samplePage = `<!doctype html>
<html>
<head><title>  Acme Corp | About  </title><style>body{color:red}</style></head>
<body>
  <header>Site header</header>
  <nav><a href="/">Home</a></nav>
  <main>
    <h1>About Acme</h1>
    <p>Acme builds   rockets
       for coyotes.</p>
    <script>var tracking = true;</script>
  </main>
  <footer>Copyright</footer>
</body>
</html>`

func newTestScraper(t *testing.T, maxChars int) *Scraper {
	return New(Config{
		UserAgent:       "test-agent",
		MaxContentChars: maxChars,
		Timeout:         2 * time.Second,
		Retry:           retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, logger.NewTestLogger(t))
}

func TestFetchText_ExtractsReadableText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	page, err := newTestScraper(t, 0).FetchText(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "Acme Corp | About", page.Title)
	assert.Equal(t, "About Acme Acme builds rockets for coyotes.", page.Content)
	assert.False(t, page.Truncated)
	assert.NotContains(t, page.Content, "tracking")
	assert.NotContains(t, page.Content, "Copyright")
}

func TestFetchText_TruncatesContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>" + strings.Repeat("a", 100) + "</p></body></html>"))
	}))
	defer server.Close()

	page, err := newTestScraper(t, 10).FetchText(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 10), page.Content)
	assert.True(t, page.Truncated)
}

func TestFetchText_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newTestScraper(t, 0).FetchText(context.Background(), server.URL)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeScrapeFailed))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchText_RejectsNonHTTPURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/file", "/relative/path", "javascript:alert(1)"} {
		_, err := newTestScraper(t, 0).FetchText(context.Background(), raw)
		require.Error(t, err, raw)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeScrapeFailed), raw)
	}
}

func TestExtractPage_FallsBackToH1AndBody(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		"<html><body><h1>Heading</h1><div>Body\ttext</div></body></html>"))
	require.NoError(t, err)

	page := ExtractPage(doc, 0)
	assert.Equal(t, "Heading", page.Title)
	assert.Equal(t, "Heading Body text", page.Content)
}

func TestExtractPage_SeparatesAdjacentBlocks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		"<html><head><title>Acme</title></head><body><main>" +
			"<h2>About</h2><p>First paragraph.</p><p>Second paragraph.</p>" +
			"<ul><li>Logistics</li><li>Freight</li></ul><div><span>Founded</span>2009</div>" +
			"</main></body></html>"))
	require.NoError(t, err)

	page := ExtractPage(doc, 0)
	assert.Equal(t, "About First paragraph. Second paragraph. Logistics Freight Founded 2009", page.Content)
}
