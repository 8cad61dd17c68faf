package api

import (
	"net/http"
)

// Router holds the handler groups served by the daemon.
type Router struct {
	Health  *HealthHandlers
	Feed    *FeedHandlers
	Likes   *LikeHandlers
	Metrics http.Handler
}

// Handler returns the mux with every route registered. Nil groups are skipped.
func (rt Router) Handler() *http.ServeMux {
	mux := http.NewServeMux()

	if rt.Health != nil {
		mux.HandleFunc("GET /health", rt.Health.Health)
	}
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}
	if rt.Feed != nil {
		mux.HandleFunc("GET /feed", rt.Feed.GetFeed)
		mux.HandleFunc("GET /feed/nearby", rt.Feed.Nearby)
		mux.HandleFunc("GET /feed/ws", rt.Feed.Subscribe)
		mux.HandleFunc("POST /feed/refresh", rt.Feed.Refresh)
		mux.HandleFunc("POST /location", rt.Feed.UpdateLocation)
		mux.HandleFunc("POST /mutes/users", rt.Feed.MuteUser)
		mux.HandleFunc("POST /mutes/tracks", rt.Feed.MuteTrack)
	}
	if rt.Likes != nil {
		mux.HandleFunc("POST /likes", rt.Likes.SendLike)
		mux.HandleFunc("POST /likes/resume", rt.Likes.Resume)
		mux.HandleFunc("GET /likes/status", rt.Likes.Status)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	})
	return mux
}
