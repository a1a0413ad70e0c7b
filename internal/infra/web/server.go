package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"classifieds-listing-core/internal/domain"
	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/repository"
	"classifieds-listing-core/internal/infra/logging"
	"classifieds-listing-core/internal/infra/metrics"
	"classifieds-listing-core/internal/usecase"
)

// Server exposes the entitlement and ranking operations over HTTP for
// integrators. The core itself is a library contract; this surface is a thin
// JSON wrapper plus an admin stats endpoint.
type Server struct {
	quota    *usecase.QuotaUseCase
	features *usecase.FeatureUseCase
	ranking  *usecase.RankingUseCase
	listings repository.ListingRepository
	subs     repository.SubscriptionRepository
	auth     *AuthManager
	log      *zerolog.Logger
}

func NewServer(
	quota *usecase.QuotaUseCase,
	features *usecase.FeatureUseCase,
	ranking *usecase.RankingUseCase,
	listings repository.ListingRepository,
	subs repository.SubscriptionRepository,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		quota:    quota,
		features: features,
		ranking:  ranking,
		listings: listings,
		subs:     subs,
		auth:     auth,
		log:      &l,
	}
}

// Router assembles the chi routing tree with logging and recovery middleware.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(traceID, requestLog(s.log), recoverer(s.log))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Get("/users/{userID}/quota", s.handleGetUsage)
		r.Get("/users/{userID}/eligibility", s.handleCheckEligibility)
		r.Get("/users/{userID}/features/{kind}", s.handleFeatureAvailability)

		r.Post("/listings/{listingID}/consume", s.handleConsume)
		r.Post("/listings/{listingID}/features", s.handleApplyFeature)
		r.Delete("/listings/{listingID}/features/expired", s.handleRemoveExpired)

		r.Get("/feed", s.handleFeed)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Get("/stats/subscriptions", s.handleSubscriptionStats)
		})
	})
	return r
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Verify(r); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.auth.CheckSecret(req.Secret) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not mint session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	categoryID := r.URL.Query().Get("category_id")
	if categoryID == "" {
		writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}
	ctx := logging.WithCategoryID(logging.WithUserID(r.Context(), userID), categoryID)
	usage, err := s.quota.GetUsage(ctx, userID, categoryID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleCheckEligibility(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	categoryID := r.URL.Query().Get("category_id")
	if categoryID == "" {
		writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}
	ctx := logging.WithCategoryID(logging.WithUserID(r.Context(), userID), categoryID)
	elig, err := s.quota.CheckEligibility(ctx, userID, categoryID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, elig)
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")
	var req struct {
		UserID     string `json:"user_id"`
		CategoryID string `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.CategoryID == "" {
		writeError(w, http.StatusBadRequest, "user_id and category_id are required")
		return
	}
	ctx := logging.WithUserID(r.Context(), req.UserID)
	ctx = logging.WithCategoryID(ctx, req.CategoryID)
	ctx = logging.WithListingID(ctx, listingID)
	if err := s.quota.Consume(ctx, req.UserID, req.CategoryID, listingID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"consumed": true})
}

func (s *Server) handleFeatureAvailability(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	kind := model.FeatureKind(chi.URLParam(r, "kind"))
	categoryID := r.URL.Query().Get("category_id")
	if categoryID == "" {
		writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}
	ctx := logging.WithCategoryID(logging.WithUserID(r.Context(), userID), categoryID)
	avail, err := s.features.CheckAvailability(ctx, userID, categoryID, kind)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := map[string]interface{}{
		"kind":      avail.Kind,
		"available": avail.Available,
	}
	if avail.Reason != "" {
		resp["reason"] = avail.Reason
	}
	if avail.Available {
		resp["expires_at"] = avail.Window.ExpiresAt
		resp["days_remaining"] = avail.Window.DaysRemaining
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleApplyFeature(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")
	var req struct {
		UserID string `json:"user_id"`
		Kind   string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Kind == "" {
		writeError(w, http.StatusBadRequest, "user_id and kind are required")
		return
	}
	ctx := logging.WithUserID(r.Context(), req.UserID)
	ctx = logging.WithListingID(ctx, listingID)
	listing, err := s.features.Apply(ctx, listingID, model.FeatureKind(req.Kind), req.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleRemoveExpired(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")
	n, err := s.features.RemoveExpired(r.Context(), listingID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	categoryID := q.Get("category_id")
	if categoryID == "" {
		writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}
	mode := model.SortMode(q.Get("sort_by"))
	if mode == "" {
		mode = model.SortRelevance
	}
	if !mode.Valid() {
		writeError(w, http.StatusBadRequest, "unknown sort_by")
		return
	}

	var rctx model.RankContext
	if latS, lonS := q.Get("lat"), q.Get("lon"); latS != "" && lonS != "" {
		lat, latErr := strconv.ParseFloat(latS, 64)
		lon, lonErr := strconv.ParseFloat(lonS, 64)
		if latErr != nil || lonErr != nil {
			writeError(w, http.StatusBadRequest, "invalid lat/lon")
			return
		}
		rctx.Location = &model.GeoPoint{Lat: lat, Lon: lon}
	}

	limit := 0
	if ls := q.Get("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	listings, err := s.listings.ListActiveByCategory(r.Context(), repository.NoTX, categoryID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	start := time.Now()
	ranked, err := s.ranking.RankFeed(listings, rctx, mode)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	metrics.ObserveFeedRank(string(mode), float64(time.Since(start).Microseconds())/1000)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sort_by":  mode,
		"count":    len(ranked),
		"listings": ranked,
	})
}

func (s *Server) handleSubscriptionStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.subs.CountActiveByPlan(r.Context(), repository.NoTX)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"active_by_plan": counts})
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid argument")
	case errors.Is(err, domain.ErrListingNotActive):
		writeError(w, http.StatusConflict, "listing is not active")
	case errors.Is(err, domain.ErrQuotaExhausted):
		writeError(w, http.StatusConflict, "quota exhausted")
	case errors.Is(err, domain.ErrFeatureUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, domain.ErrNoPlanForCategory):
		writeError(w, http.StatusInternalServerError, "no plan template configured for category")
	default:
		s.log.Error().Err(err).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
