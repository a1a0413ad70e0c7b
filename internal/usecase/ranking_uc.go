package usecase

import (
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"classifieds-listing-core/internal/domain"
	"classifieds-listing-core/internal/domain/model"
)

// Score weights. Total maxes out at 110.
const (
	scorePaid     = 30
	scoreFeatured = 20
)

// RankingUseCase computes composite relevance scores and produces a fully
// deterministic total order over an already-filtered result set. Pure: safe to
// parallelize per listing, no shared state.
type RankingUseCase struct {
	clock clockwork.Clock
	log   *zerolog.Logger
}

func NewRankingUseCase(clock clockwork.Clock, logger *zerolog.Logger) *RankingUseCase {
	l := logger.With().Str("component", "RankingUseCase").Logger()
	return &RankingUseCase{clock: clock, log: &l}
}

// Score computes the breakdown for one listing. CreatedAt is mandatory input;
// a zero value is an input error, not a zero-score default.
func (uc *RankingUseCase) Score(l *model.Listing, rctx model.RankContext) (model.ScoreBreakdown, error) {
	if l.IsZero() || l.CreatedAt.IsZero() {
		return model.ScoreBreakdown{}, domain.ErrInvalidArgument
	}
	now := uc.clock.Now()

	var b model.ScoreBreakdown
	if rctx.Location != nil && l.Location != nil {
		b.Location = locationPoints(rctx.Location.DistanceKm(*l.Location))
	}
	if l.IsPaid {
		b.Paid = scorePaid
	}
	if l.Featured.ActiveAt(now) {
		b.Featured = scoreFeatured
	}
	b.Freshness = freshnessPoints(now.Sub(l.CreatedAt))
	b.Total = b.Location + b.Paid + b.Featured + b.Freshness
	return b, nil
}

// Rank scores every listing and orders the set under the given sort mode with
// the explicit tie-break chain per mode, so the output order is independent of
// input order.
func (uc *RankingUseCase) Rank(listings []*model.Listing, rctx model.RankContext, mode model.SortMode) ([]model.RankedListing, error) {
	return uc.rank(listings, rctx, mode, false)
}

// RankFeed is the generic-feed variant: listings whose featured window is
// currently live are pinned ahead of all others regardless of mode, and the
// mode's ordering applies within each partition.
func (uc *RankingUseCase) RankFeed(listings []*model.Listing, rctx model.RankContext, mode model.SortMode) ([]model.RankedListing, error) {
	return uc.rank(listings, rctx, mode, true)
}

func (uc *RankingUseCase) rank(listings []*model.Listing, rctx model.RankContext, mode model.SortMode, pinFeatured bool) ([]model.RankedListing, error) {
	if mode == "" {
		mode = model.SortRelevance
	}
	if !mode.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	now := uc.clock.Now()

	ranked := make([]model.RankedListing, 0, len(listings))
	for _, l := range listings {
		score, err := uc.Score(l, rctx)
		if err != nil {
			return nil, err
		}
		r := model.RankedListing{Listing: l, Score: score}
		if rctx.Location != nil && l.Location != nil {
			r.DistanceKm = rctx.Location.DistanceKm(*l.Location)
			r.HasDistance = true
		}
		ranked = append(ranked, r)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if pinFeatured {
			af, bf := a.Listing.Featured.ActiveAt(now), b.Listing.Featured.ActiveAt(now)
			if af != bf {
				return af
			}
		}
		return compareRanked(a, b, mode) < 0
	})
	return ranked, nil
}

// compareRanked implements the per-mode tie-break table. Every chain ends on
// id descending, which is unique, so ties never survive.
func compareRanked(a, b model.RankedListing, mode model.SortMode) int {
	var c int
	switch mode {
	case model.SortRelevance:
		if c = cmpIntDesc(a.Score.Total, b.Score.Total); c != 0 {
			return c
		}
		if c = cmpDistanceAsc(a, b); c != 0 {
			return c
		}
		return cmpIDDesc(a, b)
	case model.SortViews:
		c = cmpInt64Desc(a.Listing.ViewCount, b.Listing.ViewCount)
	case model.SortFavorites:
		c = cmpInt64Desc(a.Listing.FavoriteCount, b.Listing.FavoriteCount)
	case model.SortPriceLow:
		c = -cmpInt64Desc(a.Listing.Price, b.Listing.Price)
	case model.SortPriceHigh:
		c = cmpInt64Desc(a.Listing.Price, b.Listing.Price)
	case model.SortDateNew:
		c = cmpTimeDesc(a.Listing.CreatedAt, b.Listing.CreatedAt)
	case model.SortDateOld:
		c = -cmpTimeDesc(a.Listing.CreatedAt, b.Listing.CreatedAt)
	}
	if c != 0 {
		return c
	}
	if c = cmpIntDesc(a.Score.Total, b.Score.Total); c != 0 {
		return c
	}
	if c = cmpDistanceAsc(a, b); c != 0 {
		return c
	}
	return cmpIDDesc(a, b)
}

func cmpIntDesc(a, b int) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func cmpInt64Desc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func cmpTimeDesc(a, b time.Time) int {
	switch {
	case a.After(b):
		return -1
	case a.Before(b):
		return 1
	}
	return 0
}

// cmpDistanceAsc treats a missing distance as +infinity.
func cmpDistanceAsc(a, b model.RankedListing) int {
	switch {
	case a.HasDistance && !b.HasDistance:
		return -1
	case !a.HasDistance && b.HasDistance:
		return 1
	case !a.HasDistance && !b.HasDistance:
		return 0
	case a.DistanceKm < b.DistanceKm:
		return -1
	case a.DistanceKm > b.DistanceKm:
		return 1
	}
	return 0
}

func cmpIDDesc(a, b model.RankedListing) int {
	return -strings.Compare(a.Listing.ID, b.Listing.ID)
}

func locationPoints(distanceKm float64) int {
	switch {
	case distanceKm <= 5:
		return 50
	case distanceKm <= 10:
		return 45
	case distanceKm <= 25:
		return 40
	case distanceKm <= 50:
		return 30
	case distanceKm <= 100:
		return 20
	case distanceKm <= 200:
		return 10
	}
	return 0
}

func freshnessPoints(age time.Duration) int {
	switch {
	case age <= 24*time.Hour:
		return 10
	case age <= 7*24*time.Hour:
		return 7
	case age <= 30*24*time.Hour:
		return 5
	}
	return 0
}
