package letterboxd

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"boxdbot-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Unrated marks an entry recorded as watched with no numeric rating.
const Unrated float64 = -1

// Rating is one extracted listing entry. Value is the rating tier on the
// half-star scale (1..10), possibly scaled by a per-identity multiplier, or
// Unrated. Name is the display title when the entry carries one.
type Rating struct {
	Identity string
	FilmId   string
	Name     string
	Value    float64
}

type ExtractOptions struct {
	// include entries marked watched but carrying no rating tier; a full
	// aggregate rebuild needs these for watch counts, targeted queries
	// usually do not
	IncludeUnrated bool
	// per-identity rating normalization, value defaults to 1.0 when an
	// identity is absent
	Multipliers map[string]float64
}

// ExtractRatings parses one raw listing page into rating records. Entries
// missing the film link marker are skipped.
func ExtractRatings(page Page, opts ExtractOptions) ([]Rating, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	var out []Rating
	doc.Find("li.poster-container").Each(func(_ int, entry *goquery.Selection) {
		filmId := filmIdFromTargetLink(
			entry.Find("div.film-poster").AttrOr("data-target-link", ""),
		)
		if filmId == "" {
			return
		}

		name := htmlutil.CleanText(entry.Find("img").AttrOr("alt", ""))

		ratingSpan := entry.Find("span.rating")
		if ratingSpan.Length() == 0 {
			if !opts.IncludeUnrated {
				return
			}
			out = append(out, Rating{
				Identity: page.Identity,
				FilmId:   filmId,
				Name:     name,
				Value:    Unrated,
			})
			return
		}

		tier, ok := tierFromClasses(ratingSpan.AttrOr("class", ""))
		if !ok {
			return
		}
		value := float64(tier)
		if m, ok := opts.Multipliers[page.Identity]; ok {
			value *= m
		}
		out = append(out, Rating{
			Identity: page.Identity,
			FilmId:   filmId,
			Name:     name,
			Value:    value,
		})
	})

	return out, nil
}

// filmIdFromTargetLink pulls the slug out of a link like "/film/the-thing/".
func filmIdFromTargetLink(link string) string {
	parts := strings.Split(strings.TrimSpace(link), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// tierFromClasses reads the tier off the last class of the rating marker,
// e.g. "rating rated-7" carries tier 7 (half-star scale).
func tierFromClasses(classAttr string) (int, bool) {
	classes := strings.Fields(classAttr)
	if len(classes) == 0 {
		return 0, false
	}
	last := classes[len(classes)-1]
	i := strings.LastIndex(last, "-")
	if i < 0 {
		return 0, false
	}
	tier, err := strconv.Atoi(last[i+1:])
	if err != nil {
		return 0, false
	}
	return tier, true
}
