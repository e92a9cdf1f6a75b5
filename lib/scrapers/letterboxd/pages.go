package letterboxd

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"boxdbot-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// PageCountUnavailable marks a profile that is missing or private, no
// further fetches should be attempted against it.
const PageCountUnavailable = -1

// PageCount requests the first listing page of an identity and counts the
// pagination controls on it. No pagination control means a single page.
func (c *Client) PageCount(ctx context.Context, identity string) (int, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/%s/films/by/date/", identity))
	if err != nil {
		return 0, fmt.Errorf("fetch page count for %s: %w", identity, err)
	}
	if res.StatusCode() == 404 {
		return PageCountUnavailable, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("fetch page count for %s: status %s", identity, res.Status())
	}
	return parsePageCount(res.Body())
}

func parsePageCount(body []byte) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return 0, fmt.Errorf("parse page count: %w", err)
	}

	if doc.Find("body").HasClass("error") {
		return PageCountUnavailable, nil
	}

	last := doc.Find("li.paginate-page").Last()
	if last.Length() == 0 {
		return 1, nil
	}
	text := strings.ReplaceAll(
		strings.TrimSpace(htmlutil.GetText(last.Nodes[0])),
		",", "",
	)
	count, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("parse page count %q: %w", text, err)
	}
	return count, nil
}

type PageCountResult struct {
	Identity string
	Pages    int
	Err      error
}

// PageCounts resolves page counts for many identities at once. Requests are
// issued concurrently and a failure on one identity never blocks the others,
// every identity gets a slot in the result.
func (c *Client) PageCounts(ctx context.Context, identities []string) []PageCountResult {
	results := make([]PageCountResult, len(identities))
	wg := sync.WaitGroup{}
	for i, identity := range identities {
		wg.Add(1)
		go func(i int, identity string) {
			defer wg.Done()
			pages, err := c.PageCount(ctx, identity)
			results[i] = PageCountResult{Identity: identity, Pages: pages, Err: err}
		}(i, identity)
	}
	wg.Wait()
	return results
}

// Page is one raw listing page tagged with the identity it belongs to.
type Page struct {
	Identity string
	Number   int
	Body     []byte
}

type PageError struct {
	Identity string
	Number   int
	Err      error
}

// FetchPages fetches pages 1..count of an identity's listing concurrently.
// Pages come back in completion order, callers must not rely on it. Failed
// pages are returned separately, the successful remainder is still usable
// since every listing entry is independent.
func (c *Client) FetchPages(ctx context.Context, identity string, count int) ([]Page, []PageError) {
	var pages []Page
	var failed []PageError
	lock := sync.Mutex{}
	wg := sync.WaitGroup{}

	for n := 1; n <= count; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			res, err := c.Http.R().
				SetContext(ctx).
				Get(fmt.Sprintf("/%s/films/by/date/page/%d/", identity, n))
			if err == nil && res.IsError() {
				err = fmt.Errorf("status %s", res.Status())
			}

			lock.Lock()
			defer lock.Unlock()
			if err != nil {
				failed = append(failed, PageError{Identity: identity, Number: n, Err: err})
				return
			}
			pages = append(pages, Page{Identity: identity, Number: n, Body: res.Body()})
		}(n)
	}

	wg.Wait()
	return pages, failed
}
