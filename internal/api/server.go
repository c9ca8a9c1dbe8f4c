// Package api is the HTTP surface of the availability service: the operator API, the calls the
// booking side makes before and while committing a booking, and the public calendar feed.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jdholdren/garage/internal/availability"
	"github.com/jdholdren/garage/internal/blocks"
	"github.com/jdholdren/garage/internal/export"
	"github.com/jdholdren/garage/internal/feedtoken"
	"github.com/jdholdren/garage/internal/ingest"
	"github.com/jdholdren/garage/internal/serverutil"
)

type (
	// Server serves every route of the service.
	Server struct {
		*http.Server

		classifier availability.Classifier
		blocks     blocks.Manager
		ingest     *ingest.Service
		export     export.Service
		tokens     feedtoken.Authority
		sweeps     *sweepRunner

		secureCookie  *securecookie.SecureCookie
		httpsCookies  bool // Whether or not HTTPS should be used for cookies
		publicBaseURL string
		startedAt     time.Time
	}

	ServerConfig struct {
		Port           int
		CookieHashKey  []byte
		CookieBlockKey []byte
		HttpsCookies   bool
		CorsHeader     string
		// Prefix of the feed URLs handed out with tokens, e.g. https://garage.example.com
		PublicBaseURL  string

		DebugEndpoints bool
	}

	// Services are the components the server fronts.
	Services struct {
		Classifier availability.Classifier
		Blocks     blocks.Manager
		Ingest     *ingest.Service
		Export     export.Service
		Tokens     feedtoken.Authority
	}
)

func NewServer(config ServerConfig, svcs Services) *Server {
	r := serverutil.ErrRouter{Router: mux.NewRouter()}

	srvr := Server{
		classifier:    svcs.Classifier,
		blocks:        svcs.Blocks,
		ingest:        svcs.Ingest,
		export:        svcs.Export,
		tokens:        svcs.Tokens,
		sweeps:        newSweepRunner(svcs.Ingest.Sweep),
		secureCookie:  securecookie.New(config.CookieHashKey, config.CookieBlockKey),
		httpsCookies:  config.HttpsCookies,
		publicBaseURL: config.PublicBaseURL,
		startedAt:     time.Now(),
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second, // Registering or syncing a feed waits on the upstream calendar
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{config.CorsHeader}),
				handlers.AllowCredentials(),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type"}),
			)(r),
		},
	}

	r.Use(serverutil.AccessLogMiddleware) // Log everything
	r.HandleFuncE("/healthz", srvr.getHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFuncE("/api/logout", srvr.getLogout).Methods(http.MethodGet)

	// Public calendar feed, gated by the token in the path
	r.HandleFuncE("/calendar/{vehicleID}/{token}", srvr.getCalendar).Methods(http.MethodGet)

	if config.DebugEndpoints {
		// For local testing
		r.HandleFuncE("/api/login", srvr.handleDebugLogin).Methods(http.MethodPost)
	}

	authed := serverutil.ErrRouter{Router: r.NewRoute().Subrouter()}
	authed.Use(requireSessionMiddleware(srvr.secureCookie))

	// Availability, for the calendar UI and the booking side
	authed.HandleFuncE("/api/vehicles/{vehicleID}/availability", srvr.getAvailability).Methods(http.MethodGet)
	authed.HandleFuncE("/api/vehicles/{vehicleID}/availability:check", srvr.getAvailabilityCheck).Methods(http.MethodGet)
	authed.HandleFuncE("/api/vehicles/{vehicleID}/bookings:commit", srvr.postCommitBooking).Methods(http.MethodPost)

	// Manual blocks
	authed.HandleFuncE("/api/vehicles/{vehicleID}/blocks", srvr.getBlocks).Methods(http.MethodGet)
	authed.HandleFuncE("/api/vehicles/{vehicleID}/blocks", srvr.postBlock).Methods(http.MethodPost)
	authed.HandleFuncE("/api/vehicles/{vehicleID}/blocks", srvr.deleteVehicleBlocks).Methods(http.MethodDelete)
	authed.HandleFuncE("/api/blocks/{blockID}", srvr.deleteBlock).Methods(http.MethodDelete)
	authed.HandleFuncE("/api/companies/{companyID}/blocks", srvr.deleteCompanyBlocks).Methods(http.MethodDelete)

	// External feeds
	authed.HandleFuncE("/api/vehicles/{vehicleID}/feeds", srvr.getFeeds).Methods(http.MethodGet)
	authed.HandleFuncE("/api/vehicles/{vehicleID}/feeds", srvr.postFeed).Methods(http.MethodPost)
	authed.HandleFuncE("/api/feeds:sweep", srvr.postSweep).Methods(http.MethodPost)
	authed.HandleFuncE("/api/feeds:sweep", srvr.getSweep).Methods(http.MethodGet)
	authed.HandleFuncE("/api/feeds/{feedID}", srvr.deleteFeed).Methods(http.MethodDelete)
	authed.HandleFuncE("/api/feeds/{feedID}/sync", srvr.postSync).Methods(http.MethodPost)

	// Outbound feed token
	authed.HandleFuncE("/api/vehicles/{vehicleID}/feed-token", srvr.postFeedToken).Methods(http.MethodPost)

	slog.Debug("configured api server", "port", config.Port)

	return &srvr
}

// Shutdown stops taking requests, then cancels a sweep still running in the background.
func (s Server) Shutdown(ctx context.Context) error {
	if err := s.Server.Shutdown(ctx); err != nil {
		return err
	}
	return s.sweeps.stop(ctx)
}

type healthResp struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s Server) getHealth(w http.ResponseWriter, r *http.Request) error {
	return serverutil.WriteJSON(w, http.StatusOK, healthResp{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}
