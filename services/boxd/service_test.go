package boxd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"boxdbot-backend/lib/scrapers/letterboxd"
	"boxdbot-backend/lib/testutil"
	"boxdbot-backend/services/boxd/db"

	"github.com/stretchr/testify/require"
)

const fixtureErrorPage = `<html><body class="error message-dark"><h1>Sorry, we can’t find the page</h1></body></html>`

// fixtureSite serves a mutable rated-films listing per identity so tests can
// change what a profile looks like between sync runs.
type fixtureSite struct {
	srv      *httptest.Server
	mu       sync.Mutex
	listings map[string][]string
	private  map[string]bool
	broken   map[string]bool
}

func newFixtureSite(t *testing.T) *fixtureSite {
	site := &fixtureSite{
		listings: map[string][]string{},
		private:  map[string]bool{},
		broken:   map[string]bool{},
	}
	site.srv = httptest.NewServer(http.HandlerFunc(site.handle))
	t.Cleanup(site.srv.Close)
	return site
}

func (s *fixtureSite) setListing(identity string, pages ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[identity] = pages
}

func (s *fixtureSite) setPrivate(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.private[identity] = true
}

func (s *fixtureSite) setBroken(identity string, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken[fmt.Sprintf("%s:%d", identity, page)] = true
}

func (s *fixtureSite) setProbeBroken(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken[identity+":probe"] = true
}

func (s *fixtureSite) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	identity := parts[0]
	if s.private[identity] {
		fmt.Fprint(w, fixtureErrorPage)
		return
	}
	pages, ok := s.listings[identity]
	if !ok {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 6 && parts[4] == "page" {
		n, err := strconv.Atoi(parts[5])
		if err != nil || n < 1 || n > len(pages) {
			http.NotFound(w, r)
			return
		}
		if s.broken[fmt.Sprintf("%s:%d", identity, n)] {
			http.Error(w, "upstream broke", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, pages[n-1])
		return
	}

	if s.broken[identity+":probe"] {
		http.Error(w, "upstream broke", http.StatusInternalServerError)
		return
	}
	if len(pages) == 1 {
		fmt.Fprint(w, pages[0])
		return
	}
	controls := ""
	for i := 1; i <= len(pages); i++ {
		controls += fmt.Sprintf(`<li class="paginate-page"><a>%d</a></li>`, i)
	}
	fmt.Fprintf(w, `<html><body><ul class="paginate-pages">%s</ul></body></html>`, controls)
}

func ratedEntry(filmId, name string, tier int) string {
	return fmt.Sprintf(
		`<li class="poster-container"><div class="film-poster" data-target-link="/film/%s/"><img alt="%s"/></div><span class="rating rated-%d">rated</span></li>`,
		filmId, name, tier,
	)
}

func unratedEntry(filmId, name string) string {
	return fmt.Sprintf(
		`<li class="poster-container"><div class="film-poster" data-target-link="/film/%s/"><img alt="%s"/></div></li>`,
		filmId, name,
	)
}

func listing(entries ...string) string {
	return fmt.Sprintf(
		`<html><body><ul class="poster-list">%s</ul></body></html>`,
		strings.Join(entries, "\n"),
	)
}

// newTestService wires a service against the fixture site with both
// cooldowns disabled unless the options say otherwise.
func newTestService(t *testing.T, opts Options) (*fixtureSite, Service) {
	site := newFixtureSite(t)

	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "boxd",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)

	if opts.FullSyncCooldown == 0 {
		opts.FullSyncCooldown = -1
	}
	if opts.MemberSyncCooldown == 0 {
		opts.MemberSyncCooldown = -1
	}

	scraper := letterboxd.NewClient(letterboxd.ClientOptions{
		BaseUrl:           site.srv.URL,
		RequestsPerSecond: 500,
		Timeout:           time.Second * 5,
	})
	return site, NewService(res.DB, scraper, opts)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)
	return ctx
}

func TestFollowInitialSync(t *testing.T) {
	site, svc := newTestService(t, Options{})
	ctx := testContext(t)

	site.setListing("alice", listing(
		ratedEntry("the-thing", "The Thing", 9),
		unratedEntry("gummo", "Gummo"),
	))

	report, err := svc.Follow(ctx, "g1", 1, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, report.Synced)
	require.Equal(t, 1, report.PagesFetched)
	require.Equal(t, 2, report.FilmsRecomputed)

	film, err := svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "the-thing"})
	require.NoError(t, err)
	require.Equal(t, "The Thing", film.Name)
	require.Equal(t, float64(9), film.GuildAvg)
	require.Equal(t, int64(1), film.RatingCount)
	require.Equal(t, int64(1), film.WatchCount)

	film, err = svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "gummo"})
	require.NoError(t, err)
	require.Equal(t, int64(0), film.RatingCount)
	require.Equal(t, int64(1), film.WatchCount)

	members, err := svc.Following(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "alice", members[0].LbId)
}

func TestFollowReplacesMapping(t *testing.T) {
	site, svc := newTestService(t, Options{})
	ctx := testContext(t)

	site.setListing("alice", listing(ratedEntry("the-thing", "The Thing", 9)))
	site.setListing("bob", listing(ratedEntry("stalker", "Stalker", 10)))

	_, err := svc.Follow(ctx, "g1", 1, "alice")
	require.NoError(t, err)
	_, err = svc.Follow(ctx, "g1", 1, "bob")
	require.NoError(t, err)

	members, err := svc.Following(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "bob", members[0].LbId)
}

func TestFollowPrivateProfile(t *testing.T) {
	site, svc := newTestService(t, Options{})
	ctx := testContext(t)

	site.setPrivate("ghost")

	report, err := svc.Follow(ctx, "g1", 1, "ghost")
	require.NoError(t, err)
	require.Equal(t, 0, report.Synced)
	require.Equal(t, []string{"ghost"}, report.Unavailable)
}

func TestUnfollowCascade(t *testing.T) {
	site, svc := newTestService(t, Options{})
	ctx := testContext(t)

	site.setListing("alice", listing(
		ratedEntry("the-thing", "The Thing", 9),
		unratedEntry("gummo", "Gummo"),
	))
	site.setListing("bob", listing(ratedEntry("the-thing", "The Thing", 7)))

	_, err := svc.Follow(ctx, "g1", 1, "alice")
	require.NoError(t, err)
	_, err = svc.Follow(ctx, "g1", 2, "bob")
	require.NoError(t, err)

	film, err := svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "the-thing"})
	require.NoError(t, err)
	require.Equal(t, float64(8), film.GuildAvg)
	require.Equal(t, int64(2), film.RatingCount)

	err = svc.Unfollow(ctx, "g1", "bob")
	require.NoError(t, err)

	film, err = svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "the-thing"})
	require.NoError(t, err)
	require.Equal(t, float64(9), film.GuildAvg)
	require.Equal(t, int64(1), film.RatingCount)

	err = svc.Unfollow(ctx, "g1", "alice")
	require.NoError(t, err)

	_, err = svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "the-thing"})
	require.ErrorIs(t, err, sql.ErrNoRows)
	_, err = svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "gummo"})
	require.ErrorIs(t, err, sql.ErrNoRows)

	members, err := svc.Following(ctx, "g1")
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestSyncMemberOverwritesRating(t *testing.T) {
	site, svc := newTestService(t, Options{})
	ctx := testContext(t)

	site.setListing("alice", listing(ratedEntry("the-thing", "The Thing", 4)))
	_, err := svc.Follow(ctx, "g1", 1, "alice")
	require.NoError(t, err)

	site.setListing("alice", listing(ratedEntry("the-thing", "The Thing", 5)))
	_, err = svc.SyncMember(ctx, "g1", 1)
	require.NoError(t, err)

	ratings, err := svc.qry.GetRatingsByIdentity(ctx, db.GetRatingsByIdentityParams{
		Guild: "g1",
		LbId:  "alice",
	})
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	require.Equal(t, float64(5), ratings[0].Rating)

	film, err := svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "the-thing"})
	require.NoError(t, err)
	require.Equal(t, float64(5), film.GuildAvg)
	require.Equal(t, int64(1), film.RatingCount)
}

func TestMemberCooldown(t *testing.T) {
	site, svc := newTestService(t, Options{MemberSyncCooldown: time.Hour})
	ctx := testContext(t)

	site.setListing("alice", listing(ratedEntry("the-thing", "The Thing", 9)))

	// the initial follow sync is exempt from the cooldown
	_, err := svc.Follow(ctx, "g1", 1, "alice")
	require.NoError(t, err)

	_, err = svc.SyncMember(ctx, "g1", 1)
	var cooldown CooldownError
	require.ErrorAs(t, err, &cooldown)
	require.Greater(t, cooldown.Remaining, time.Duration(0))
}

func TestGuildCooldown(t *testing.T) {
	site, svc := newTestService(t, Options{FullSyncCooldown: time.Hour})
	ctx := testContext(t)

	site.setListing("alice", listing(ratedEntry("the-thing", "The Thing", 9)))
	_, err := svc.Follow(ctx, "g1", 1, "alice")
	require.NoError(t, err)

	_, err = svc.SyncGuild(ctx, "g1")
	require.NoError(t, err)

	_, err = svc.SyncGuild(ctx, "g1")
	var cooldown CooldownError
	require.ErrorAs(t, err, &cooldown)
	require.Greater(t, cooldown.Remaining, time.Duration(0))
}

func TestMultiplierApplied(t *testing.T) {
	site, svc := newTestService(t, Options{
		Multipliers: map[string]float64{"hizv": 1.25},
	})
	ctx := testContext(t)

	site.setListing("hizv", listing(
		ratedEntry("the-thing", "The Thing", 8),
		unratedEntry("gummo", "Gummo"),
	))

	_, err := svc.Follow(ctx, "g1", 1, "hizv")
	require.NoError(t, err)

	ratings, err := svc.qry.GetRatingsByIdentity(ctx, db.GetRatingsByIdentityParams{
		Guild: "g1",
		LbId:  "hizv",
	})
	require.NoError(t, err)
	byFilm := map[string]float64{}
	for _, r := range ratings {
		byFilm[r.FilmId] = r.Rating
	}
	require.Equal(t, float64(10), byFilm["the-thing"])
	// the unrated sentinel is never scaled
	require.Equal(t, letterboxd.Unrated, byFilm["gummo"])
}

func TestGuildsIsolated(t *testing.T) {
	site, svc := newTestService(t, Options{})
	ctx := testContext(t)

	site.setListing("alice", listing(ratedEntry("the-thing", "The Thing", 9)))
	site.setListing("bob", listing(ratedEntry("the-thing", "The Thing", 3)))

	_, err := svc.Follow(ctx, "g1", 1, "alice")
	require.NoError(t, err)
	_, err = svc.Follow(ctx, "g2", 1, "bob")
	require.NoError(t, err)

	film, err := svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "the-thing"})
	require.NoError(t, err)
	require.Equal(t, float64(9), film.GuildAvg)

	film, err = svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g2", FilmId: "the-thing"})
	require.NoError(t, err)
	require.Equal(t, float64(3), film.GuildAvg)

	err = svc.Unfollow(ctx, "g1", "alice")
	require.NoError(t, err)

	_, err = svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g2", FilmId: "the-thing"})
	require.NoError(t, err)
}

func TestSyncMemberUnknown(t *testing.T) {
	_, svc := newTestService(t, Options{})
	ctx := testContext(t)

	_, err := svc.SyncMember(ctx, "g1", 42)
	require.True(t, errors.Is(err, sql.ErrNoRows))
}
