package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JR-coderli/EFsafari/internal/middleware"
)

// Router builds the HTTP routes. Everything under /api except the health
// checks requires a bearer token.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/api/dashboard/health", s.AreaHealthHandler("dashboard")).Methods("GET")
	r.HandleFunc("/api/daily-report/health", s.AreaHealthHandler("daily_report")).Methods("GET")
	r.HandleFunc("/api/hourly/health", s.AreaHealthHandler("hourly")).Methods("GET")

	authed := r.NewRoute().Subrouter()
	authed.Use(middleware.RequireUser(s.Users, s.TokenSecret, s.TokenTTL, s.Logger))

	authed.HandleFunc("/reload", s.requireAdmin("reload", s.ReloadHandler)).Methods("POST")
	authed.HandleFunc("/api/auth/me", s.MeHandler).Methods("GET")

	dash := authed.PathPrefix("/api/dashboard").Subrouter()
	dash.HandleFunc("/hierarchy", s.DashboardHierarchyHandler).Methods("GET")
	dash.HandleFunc("/data", s.DashboardDataHandler).Methods("GET")
	dash.HandleFunc("/daily", s.DashboardDailyHandler).Methods("GET")
	dash.HandleFunc("/aggregate", s.DashboardAggregateHandler).Methods("GET")
	dash.HandleFunc("/platforms", s.PlatformsHandler).Methods("GET")
	dash.HandleFunc("/dimensions", s.DimensionsHandler).Methods("GET")
	dash.HandleFunc("/metrics", s.MetricsCatalogHandler).Methods("GET")
	dash.HandleFunc("/etl-status", s.ETLStatusHandler).Methods("GET")

	daily := authed.PathPrefix("/api/daily-report").Subrouter()
	daily.HandleFunc("/data", s.DailyReportDataHandler).Methods("GET")
	daily.HandleFunc("/summary", s.DailyReportSummaryHandler).Methods("GET")
	daily.HandleFunc("/hierarchy", s.DailyReportHierarchyHandler).Methods("GET")
	daily.HandleFunc("/media-list", s.MediaListHandler).Methods("GET")
	daily.HandleFunc("/update-spend", s.UpdateSpendHandler).Methods("POST")
	daily.HandleFunc("/correct-spend", s.CorrectSpendHandler).Methods("POST")
	daily.HandleFunc("/sync", s.SyncHandler).Methods("POST")
	daily.HandleFunc("/lock-date", s.LockDateHandler).Methods("POST")
	daily.HandleFunc("/locked-dates", s.LockedDatesHandler).Methods("GET")

	hourly := authed.PathPrefix("/api/hourly").Subrouter()
	hourly.HandleFunc("/data", s.HourlyDataHandler).Methods("GET")
	hourly.HandleFunc("/hierarchy", s.HourlyHierarchyHandler).Methods("GET")
	hourly.HandleFunc("/dimensions", s.HourlyDimensionsHandler).Methods("GET")
	hourly.HandleFunc("/timezones", s.TimezonesHandler).Methods("GET")
	hourly.HandleFunc("/status", s.HourlyStatusHandler).Methods("GET")
	hourly.HandleFunc("/refresh", s.HourlyRefreshHandler).Methods("POST")

	users := authed.PathPrefix("/api/users").Subrouter()
	users.HandleFunc("", s.requireAdmin("users_list", s.ListUsersHandler)).Methods("GET")
	users.HandleFunc("", s.requireAdmin("users_create", s.CreateUserHandler)).Methods("POST")
	users.HandleFunc("/{id}", s.requireAdmin("users_update", s.UpdateUserHandler)).Methods("PUT")
	users.HandleFunc("/{id}", s.requireAdmin("users_delete", s.DeleteUserHandler)).Methods("DELETE")

	return r
}
