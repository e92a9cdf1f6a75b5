package letterboxd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func paginatedListing(pages int) string {
	controls := ""
	for i := 1; i <= pages; i++ {
		controls += fmt.Sprintf(`<li class="paginate-page"><a href="/page/%d/">%d</a></li>`, i, i)
	}
	return fmt.Sprintf(`<html><body><ul class="paginate-pages">%s</ul></body></html>`, controls)
}

const errorPage = `<html><body class="error message-dark"><h1>Sorry, we can’t find the page</h1></body></html>`

func newFixtureServer(t *testing.T) (*httptest.Server, *Client) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alice/films/by/date/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, paginatedListing(3))
	})
	mux.HandleFunc("/private_user/films/by/date/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, errorPage)
	})
	mux.HandleFunc("/solo/films/by/date/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul class="poster-list"></ul></body></html>`)
	})
	mux.HandleFunc("/bob/films/by/date/page/1/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage)
	})
	mux.HandleFunc("/bob/films/by/date/page/2/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusInternalServerError)
	})
	mux.HandleFunc("/bob/films/by/date/page/3/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(ClientOptions{
		BaseUrl:           srv.URL,
		RequestsPerSecond: 500,
		Timeout:           time.Second * 5,
	})
	return srv, client
}

func TestPageCount(t *testing.T) {
	_, client := newFixtureServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	pages, err := client.PageCount(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 3, pages)

	pages, err = client.PageCount(ctx, "private_user")
	require.NoError(t, err)
	require.Equal(t, PageCountUnavailable, pages)

	pages, err = client.PageCount(ctx, "solo")
	require.NoError(t, err)
	require.Equal(t, 1, pages)
}

func TestPageCounts(t *testing.T) {
	_, client := newFixtureServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	results := client.PageCounts(ctx, []string{"alice", "private_user", "solo"})
	require.Len(t, results, 3)

	byIdentity := map[string]PageCountResult{}
	for _, r := range results {
		byIdentity[r.Identity] = r
	}
	require.NoError(t, byIdentity["alice"].Err)
	require.Equal(t, 3, byIdentity["alice"].Pages)
	require.Equal(t, PageCountUnavailable, byIdentity["private_user"].Pages)
	require.Equal(t, 1, byIdentity["solo"].Pages)
}

func TestParsePageCountComma(t *testing.T) {
	body := `<html><body><ul>
		<li class="paginate-page"><a>1</a></li>
		<li class="paginate-page"><a>1,024</a></li>
	</ul></body></html>`
	count, err := parsePageCount([]byte(body))
	require.NoError(t, err)
	require.Equal(t, 1024, count)
}

func TestFetchPagesPartialFailure(t *testing.T) {
	_, client := newFixtureServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	pages, failed := client.FetchPages(ctx, "bob", 3)
	require.Len(t, pages, 2)
	require.Len(t, failed, 1)
	require.Equal(t, 2, failed[0].Number)
	require.Equal(t, "bob", failed[0].Identity)

	for _, p := range pages {
		require.Equal(t, "bob", p.Identity)
		require.NotEmpty(t, p.Body)
	}
}
