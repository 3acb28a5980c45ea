package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/urlmonitor/internal/domain"
	apimw "github.com/hamed0406/urlmonitor/internal/httpapi/middleware"
	"github.com/hamed0406/urlmonitor/internal/repo"
)

// Scheduler is the part of the task registry the API drives on create,
// update and delete.
type Scheduler interface {
	Start(def domain.CheckDefinition) error
	Replace(id int64, def domain.CheckDefinition) error
	StopByIdentity(id int64) bool
}

type Server struct {
	Logger *zap.Logger
	Store  repo.Store
	Sched  Scheduler
	// UIDir is a built web UI directory served at /ui and /static when set.
	UIDir string

	// lifecycle pairs each definition write with its scheduler call so a
	// concurrent update cannot restart a monitor after its delete.
	lifecycle sync.Mutex
}

func NewServer(l *zap.Logger, store repo.Store, sched Scheduler) *Server {
	return &Server{Logger: l, Store: store, Sched: sched}
}

// Router wires the routes. Reads need any key, writes need admin access.
// Rate limits are requests per minute per client IP.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", apimw.APIKeyName},
		ExposedHeaders:   []string{"X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(allowedOrigins) > 0 {
		corsOpts.AllowedOrigins = allowedOrigins
	} else {
		corsOpts.AllowedOrigins = []string{"*"}
		corsOpts.AllowCredentials = false
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if s.UIDir != "" {
		files := http.FileServer(http.Dir(s.UIDir))
		r.Handle("/ui/*", http.StripPrefix("/ui", files))
		r.Handle("/static/*", files)
		toUI := func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
		}
		r.Get("/", toUI)
		r.Get("/ui", toUI)
	}

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(pubRPM, pubBurst))
		r.Use(apimw.RequireAny(keys))

		r.Get("/latestresults", s.handleLatestResults)
		r.Get("/checkdefinitions", s.handleListDefinitions)
		r.Get("/checkdefinitions/{checkId}", s.handleGetDefinition)
		r.Get("/checkresults", s.handleListResults)
		r.Get("/notificationaddresses", s.handleListAddresses)
		r.Get("/notificationaddresses/{notificationId}", s.handleGetAddress)
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(admRPM, admBurst))
		r.Use(apimw.RequireAdmin(keys))

		r.Post("/checkdefinitions", s.handleCreateDefinition)
		r.Put("/checkdefinitions/{checkId}", s.handleUpdateDefinition)
		r.Delete("/checkdefinitions/{checkId}", s.handleDeleteDefinition)
		r.Post("/notificationaddresses", s.handleCreateAddress)
		r.Put("/notificationaddresses/{notificationId}", s.handleUpdateAddress)
		r.Delete("/notificationaddresses/{notificationId}", s.handleDeleteAddress)
	})

	return r
}

// ---- helpers ----

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	writeJSON(w, http.StatusOK, items)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func queryID(r *http.Request, name string) (int64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	return id, err == nil && id > 0
}

// isValidHTTPURL accepts absolute http(s) URLs with a host.
func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != "" && u.Hostname() != ""
}

// normalizeHTTPURL lowercases scheme and host, drops default ports and a bare
// trailing slash so equivalent URLs collide on the unique constraint.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	if u.Path == "/" {
		u.Path, u.RawPath = "", ""
	}
	u.Fragment, u.RawFragment = "", ""
	return u.String()
}

// ---- check definitions ----

type definitionPayload struct {
	URL            string `json:"url"`
	Frequency      int    `json:"frequency"`
	ExpectedStatus int    `json:"expectedStatus"`
	ExpectedString string `json:"expectedString"`
}

func (p definitionPayload) validate() string {
	switch {
	case !isValidHTTPURL(p.URL):
		return "url must be an absolute http or https URL"
	case p.Frequency <= 0:
		return "frequency must be positive"
	case p.ExpectedStatus < 100 || p.ExpectedStatus > 599:
		return "expectedStatus must be between 100 and 599"
	}
	return ""
}

func decodeDefinition(w http.ResponseWriter, r *http.Request) (domain.CheckDefinition, bool) {
	var p definitionPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return domain.CheckDefinition{}, false
	}
	if msg := p.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return domain.CheckDefinition{}, false
	}
	return domain.CheckDefinition{
		URL:            normalizeHTTPURL(p.URL),
		Frequency:      p.Frequency,
		ExpectedStatus: p.ExpectedStatus,
		ExpectedString: p.ExpectedString,
	}, true
}

func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.Store.ListDefinitions(r.Context(), r.URL.Query().Get("urlcontains"))
	if err != nil {
		s.Logger.Error("list_definitions_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	addrs, err := s.Store.ListAddresses(r.Context(), 0)
	if err != nil {
		s.Logger.Error("list_addresses_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	byCheck := make(map[int64][]domain.NotificationAddress)
	for _, a := range addrs {
		byCheck[a.CheckID] = append(byCheck[a.CheckID], a)
	}
	for i := range defs {
		defs[i].EmailAddresses = byCheck[defs[i].ID]
	}
	writeList(w, defs)
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "checkId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid checkId")
		return
	}
	d, err := s.Store.GetDefinition(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.Logger.Error("get_definition_error", zap.Int64("check_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}
	if d.EmailAddresses, err = s.Store.ListAddresses(r.Context(), id); err != nil {
		s.Logger.Warn("get_definition_addresses_error", zap.Int64("check_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	d, ok := decodeDefinition(w, r)
	if !ok {
		return
	}
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if err := s.Store.CreateDefinition(r.Context(), &d); err != nil {
		if errors.Is(err, repo.ErrDuplicateURL) {
			writeError(w, http.StatusConflict, "url already monitored")
			return
		}
		s.Logger.Error("create_definition_error", zap.String("url", d.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}
	if err := s.Sched.Start(d); err != nil {
		s.Logger.Error("monitor_start_error", zap.Int64("check_id", d.ID), zap.Error(err))
	}
	s.Logger.Info("definition_created", zap.Int64("check_id", d.ID), zap.String("url", d.URL), zap.Int("frequency", d.Frequency))
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "checkId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid checkId")
		return
	}
	d, ok := decodeDefinition(w, r)
	if !ok {
		return
	}
	d.ID = id
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if err := s.Store.UpdateDefinition(r.Context(), &d); err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		case errors.Is(err, repo.ErrDuplicateURL):
			writeError(w, http.StatusConflict, "url already monitored")
		default:
			s.Logger.Error("update_definition_error", zap.Int64("check_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not update")
		}
		return
	}
	if err := s.Sched.Replace(id, d); err != nil {
		s.Logger.Error("monitor_replace_error", zap.Int64("check_id", id), zap.Error(err))
	}
	s.Logger.Info("definition_updated", zap.Int64("check_id", id), zap.String("url", d.URL))
	writeJSON(w, http.StatusCreated, d)
}

// handleDeleteDefinition stops the monitor before deleting so no result is
// written for a definition that no longer exists. If the delete fails the
// monitor is restarted.
func (s *Server) handleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "checkId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid checkId")
		return
	}
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	d, err := s.Store.GetDefinition(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.Logger.Error("get_definition_error", zap.Int64("check_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete")
		return
	}

	stopped := s.Sched.StopByIdentity(id)
	if err := s.Store.DeleteDefinition(r.Context(), id); err != nil {
		if stopped {
			if serr := s.Sched.Start(*d); serr != nil {
				s.Logger.Error("monitor_restart_error", zap.Int64("check_id", id), zap.Error(serr))
			}
		}
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.Logger.Error("delete_definition_error", zap.Int64("check_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete")
		return
	}
	s.Logger.Info("definition_deleted", zap.Int64("check_id", id), zap.Bool("monitor_stopped", stopped))
	w.WriteHeader(http.StatusNoContent)
}

// ---- results ----

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	checkID, ok := queryID(r, "checkId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid checkId")
		return
	}
	rs, err := s.Store.ListResults(r.Context(), checkID)
	if err != nil {
		s.Logger.Error("list_results_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeList(w, rs)
}

func (s *Server) handleLatestResults(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Store.LatestResults(r.Context(), r.URL.Query().Get("urlcontains"))
	if err != nil {
		s.Logger.Error("latest_results_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "latest error")
		return
	}
	writeList(w, rows)
}

// ---- notification addresses ----

type addressPayload struct {
	CheckID      int64  `json:"checkId"`
	EmailAddress string `json:"emailAddress"`
}

func decodeAddress(w http.ResponseWriter, r *http.Request) (domain.NotificationAddress, bool) {
	var p addressPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return domain.NotificationAddress{}, false
	}
	email := strings.TrimSpace(p.EmailAddress)
	if p.CheckID <= 0 || email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "checkId and a valid emailAddress are required")
		return domain.NotificationAddress{}, false
	}
	return domain.NotificationAddress{CheckID: p.CheckID, EmailAddress: email}, true
}

func (s *Server) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	checkID, ok := queryID(r, "checkId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid checkId")
		return
	}
	as, err := s.Store.ListAddresses(r.Context(), checkID)
	if err != nil {
		s.Logger.Error("list_addresses_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeList(w, as)
}

func (s *Server) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "notificationId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid notificationId")
		return
	}
	a, err := s.Store.GetAddress(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.Logger.Error("get_address_error", zap.Int64("address_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	a, ok := decodeAddress(w, r)
	if !ok {
		return
	}
	if err := s.Store.CreateAddress(r.Context(), &a); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "check definition not found")
			return
		}
		s.Logger.Error("create_address_error", zap.Int64("check_id", a.CheckID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUpdateAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "notificationId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid notificationId")
		return
	}
	a, ok := decodeAddress(w, r)
	if !ok {
		return
	}
	a.ID = id
	if err := s.Store.UpdateAddress(r.Context(), &a); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.Logger.Error("update_address_error", zap.Int64("address_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not update")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleDeleteAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "notificationId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid notificationId")
		return
	}
	if err := s.Store.DeleteAddress(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.Logger.Error("delete_address_error", zap.Int64("address_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
