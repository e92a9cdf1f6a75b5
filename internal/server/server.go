// Package server exposes the sync and query operations over an internal
// HTTP API so the bot frontend can drive them without linking the service.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"boxdbot-backend/services/boxd"
	"boxdbot-backend/services/boxd/db"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBody = 1 << 20

type Server struct {
	svc    boxd.Service
	router chi.Router
}

func New(svc boxd.Service) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{svc: svc, router: r}

	r.Get("/healthz", s.handleHealthz)
	r.Route("/v1/guilds/{guild}", func(r chi.Router) {
		r.Post("/sync", s.handleSyncGuild)
		r.Get("/members", s.handleFollowing)
		r.Route("/members/{uid}", func(r chi.Router) {
			r.Post("/sync", s.handleSyncMember)
			r.Put("/follow", s.handleFollow)
		})
		r.Delete("/identities/{lbId}", s.handleUnfollow)
		r.Route("/films", func(r chi.Router) {
			r.Get("/top", s.handleTopFilms)
			r.Get("/bottom", s.handleBottomFilms)
			r.Get("/who-knows", s.handleWhoKnows)
			r.Put("/{filmId}/name", s.handleSetFilmName)
		})
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		err := json.NewEncoder(w).Encode(payload)
		if err != nil {
			slog.Warn("encode response", "err", err)
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondServiceError maps service failures onto status codes: cooldown
// rejections become 429 with a Retry-After header, missing rows become 404.
func respondServiceError(w http.ResponseWriter, err error) {
	var cooldown boxd.CooldownError
	switch {
	case errors.As(err, &cooldown):
		w.Header().Set("Retry-After", strconv.Itoa(int(cooldown.Remaining.Seconds())+1))
		respondError(w, http.StatusTooManyRequests, cooldown.Error())
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, boxd.ErrNoFilmMatch):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func uidParam(r *http.Request) (int64, error) {
	uid, err := strconv.ParseInt(chi.URLParam(r, "uid"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("uid must be a decimal member id")
	}
	return uid, nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSyncGuild runs a full guild sync. With ?wait=false the run detaches
// into the background and the response is an immediate 202, the bot frontend
// uses this since a large guild can take minutes.
func (s *Server) handleSyncGuild(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")

	if r.URL.Query().Get("wait") == "false" {
		// detached from the request lifetime, the outcome only goes to
		// the log
		go func() {
			report, err := s.svc.SyncGuild(context.Background(), guild)
			if err != nil {
				slog.Warn("background guild sync", "guild", guild, "err", err)
				return
			}
			slog.Info("background guild sync finished",
				"guild", guild,
				"synced", report.Synced,
				"films_recomputed", report.FilmsRecomputed,
			)
		}()
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}

	report, err := s.svc.SyncGuild(r.Context(), guild)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSyncMember(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")
	uid, err := uidParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.svc.SyncMember(r.Context(), guild, uid)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type followRequest struct {
	LbId string `json:"lb_id"`
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")
	uid, err := uidParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req followRequest
	err = decodeJSONBody(w, r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unable to parse request body")
		return
	}
	req.LbId = strings.TrimSpace(req.LbId)
	if req.LbId == "" {
		respondError(w, http.StatusBadRequest, "lb_id is required")
		return
	}

	report, err := s.svc.Follow(r.Context(), guild, uid, req.LbId)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")
	lbId := chi.URLParam(r, "lbId")

	err := s.svc.Unfollow(r.Context(), guild, lbId)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type memberResponse struct {
	Uid  int64  `json:"uid"`
	LbId string `json:"lb_id"`
}

func (s *Server) handleFollowing(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")

	members, err := s.svc.Following(r.Context(), guild)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{Uid: m.Uid, LbId: m.LbId})
	}
	respondJSON(w, http.StatusOK, out)
}

func rankingQuery(r *http.Request) (minRatings, limit int64, err error) {
	minRatings = 1
	if val := r.URL.Query().Get("min_ratings"); val != "" {
		minRatings, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid min_ratings value")
		}
	}
	if val := r.URL.Query().Get("limit"); val != "" {
		limit, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid limit value")
		}
	}
	return minRatings, limit, nil
}

type filmResponse struct {
	FilmId      string  `json:"film_id"`
	Name        string  `json:"name,omitempty"`
	GuildAvg    float64 `json:"guild_avg"`
	RatingCount int64   `json:"rating_count"`
	WatchCount  int64   `json:"watch_count"`
}

func (s *Server) handleTopFilms(w http.ResponseWriter, r *http.Request) {
	s.handleRankedFilms(w, r, s.svc.TopFilms)
}

func (s *Server) handleBottomFilms(w http.ResponseWriter, r *http.Request) {
	s.handleRankedFilms(w, r, s.svc.BottomFilms)
}

func (s *Server) handleRankedFilms(
	w http.ResponseWriter,
	r *http.Request,
	rank func(ctx context.Context, guild string, minRatings, limit int64) ([]db.Film, error),
) {
	guild := chi.URLParam(r, "guild")
	minRatings, limit, err := rankingQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	films, err := rank(r.Context(), guild, minRatings, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]filmResponse, 0, len(films))
	for _, f := range films {
		out = append(out, filmResponse{
			FilmId:      f.FilmId,
			Name:        f.Name,
			GuildAvg:    f.GuildAvg,
			RatingCount: f.RatingCount,
			WatchCount:  f.WatchCount,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleWhoKnows(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}

	result, err := s.svc.WhoKnows(r.Context(), guild, query)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type setFilmNameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSetFilmName(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")
	filmId := chi.URLParam(r, "filmId")

	var req setFilmNameRequest
	err := decodeJSONBody(w, r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unable to parse request body")
		return
	}

	err = s.svc.SetFilmName(r.Context(), guild, filmId, req.Name)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
