package model

// SortMode selects the primary ordering criterion for a result set.
type SortMode string

const (
	SortRelevance SortMode = "relevance"
	SortViews     SortMode = "views"
	SortFavorites SortMode = "favorites"
	SortPriceLow  SortMode = "price_low"
	SortPriceHigh SortMode = "price_high"
	SortDateNew   SortMode = "date_new"
	SortDateOld   SortMode = "date_old"
)

func (m SortMode) Valid() bool {
	switch m {
	case SortRelevance, SortViews, SortFavorites, SortPriceLow, SortPriceHigh, SortDateNew, SortDateOld:
		return true
	}
	return false
}

// ScoreBreakdown itemizes the composite relevance score. Total is the
// unweighted sum of the components (max 110).
type ScoreBreakdown struct {
	Location  int `json:"location"`
	Paid      int `json:"paid"`
	Featured  int `json:"featured"`
	Freshness int `json:"freshness"`
	Total     int `json:"total"`
}

// RankContext carries the requester-side inputs to scoring. Location may be
// absent; scoring then awards no proximity points.
type RankContext struct {
	Location *GeoPoint
}

// RankedListing pairs a listing with its computed score and distance.
// HasDistance is false when either side lacks a location; such rows sort after
// every located row in distance tie-breaks.
type RankedListing struct {
	Listing     *Listing       `json:"listing"`
	Score       ScoreBreakdown `json:"score"`
	DistanceKm  float64        `json:"distance_km"`
	HasDistance bool           `json:"has_distance"`
}
