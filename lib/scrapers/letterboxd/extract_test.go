package letterboxd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const listingPage = `<html><body>
<ul class="poster-list">
	<li class="poster-container">
		<div class="film-poster" data-target-link="/film/the-thing/">
			<img alt="The Thing"/>
		</div>
		<p class="poster-viewingdata"><span class="rating rated-9">★★★★½</span></p>
	</li>
	<li class="poster-container">
		<div class="film-poster" data-target-link="/film/stalker/">
			<img alt="Stalker"/>
		</div>
		<p class="poster-viewingdata"><span class="rating rated-10">★★★★★</span></p>
	</li>
	<li class="poster-container">
		<div class="film-poster" data-target-link="/film/gummo/">
			<img alt="Gummo"/>
		</div>
		<p class="poster-viewingdata"></p>
	</li>
	<li class="poster-container">
		<div class="other-widget"></div>
	</li>
	<li class="poster-container">
		<div class="film-poster" data-target-link="/film/eraserhead/">
			<img alt="Eraserhead"/>
		</div>
		<p class="poster-viewingdata"><span class="rating rated-junk">?</span></p>
	</li>
</ul>
</body></html>`

func TestExtractRatings(t *testing.T) {
	page := Page{Identity: "bob", Number: 1, Body: []byte(listingPage)}

	ratings, err := ExtractRatings(page, ExtractOptions{IncludeUnrated: true})
	require.NoError(t, err)
	require.Len(t, ratings, 3)

	require.Equal(t, Rating{Identity: "bob", FilmId: "the-thing", Name: "The Thing", Value: 9}, ratings[0])
	require.Equal(t, Rating{Identity: "bob", FilmId: "stalker", Name: "Stalker", Value: 10}, ratings[1])
	require.Equal(t, Rating{Identity: "bob", FilmId: "gummo", Name: "Gummo", Value: Unrated}, ratings[2])
}

func TestExtractRatingsSkipsUnrated(t *testing.T) {
	page := Page{Identity: "bob", Number: 1, Body: []byte(listingPage)}

	ratings, err := ExtractRatings(page, ExtractOptions{IncludeUnrated: false})
	require.NoError(t, err)
	require.Len(t, ratings, 2)
	for _, r := range ratings {
		require.NotEqual(t, Unrated, r.Value)
	}
}

func TestExtractRatingsMultiplier(t *testing.T) {
	page := Page{Identity: "hizv", Number: 1, Body: []byte(listingPage)}

	ratings, err := ExtractRatings(page, ExtractOptions{
		IncludeUnrated: true,
		Multipliers:    map[string]float64{"hizv": 1.25},
	})
	require.NoError(t, err)
	require.Len(t, ratings, 3)

	require.Equal(t, 9*1.25, ratings[0].Value)
	require.Equal(t, 10*1.25, ratings[1].Value)
	// the sentinel is never scaled
	require.Equal(t, Unrated, ratings[2].Value)
}

func TestExtractRatingsOtherIdentityUnscaled(t *testing.T) {
	page := Page{Identity: "bob", Number: 1, Body: []byte(listingPage)}

	ratings, err := ExtractRatings(page, ExtractOptions{
		Multipliers: map[string]float64{"hizv": 1.25},
	})
	require.NoError(t, err)
	require.Equal(t, float64(9), ratings[0].Value)
}

func TestFilmIdFromTargetLink(t *testing.T) {
	require.Equal(t, "the-thing", filmIdFromTargetLink("/film/the-thing/"))
	require.Equal(t, "", filmIdFromTargetLink(""))
	require.Equal(t, "", filmIdFromTargetLink("nonsense"))
}
