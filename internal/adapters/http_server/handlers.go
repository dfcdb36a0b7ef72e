package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"hostaway_sync/internal/app"
	"hostaway_sync/internal/domain"
)

// Queries is the read side served under /v1.
type Queries interface {
	Search(ctx context.Context, f domain.PropertyFilter) (domain.PropertyPage, error)
	GetProperty(ctx context.Context, idOrSlug string) (domain.Property, error)
	Amenities(ctx context.Context) ([]string, error)
	Availability(ctx context.Context, propertyID int64, start, end time.Time) (app.AvailabilityView, error)
	Rates(ctx context.Context, propertyID int64, start, end time.Time) (app.RatesView, error)
	RecentLogs(ctx context.Context, limit int) ([]domain.SyncLog, error)
}

type Bookings interface {
	Quote(ctx context.Context, propertyID int64, checkin, checkout time.Time, guests int) (domain.Quote, error)
	CreateReservation(ctx context.Context, req domain.ReservationRequest) (domain.Reservation, error)
	CancelReservation(ctx context.Context, id int64) (domain.Reservation, error)
	Reservation(ctx context.Context, id int64) (domain.Reservation, error)
}

type Syncer interface {
	SyncAll(ctx context.Context) (domain.SyncReport, error)
}

type Handlers struct {
	Q          Queries
	B          Bookings
	S          Syncer
	AdminToken string

	validate *validator.Validate
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

const maxBodyBytes = 1 << 20

func (s *Server) MountHandlers(h *Handlers) {
	if h.validate == nil {
		h.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(Timeout(s.timeout))
			r.Get("/search", h.search)
			r.Get("/amenities", h.amenities)
			r.Route("/properties/{id}", func(r chi.Router) {
				r.Get("/", h.getProperty)
				r.Get("/availability", h.availability)
				r.Get("/rates", h.rates)
				r.Get("/price", h.price)
			})
			r.Post("/reservations", h.createReservation)
			r.Get("/reservations/{id}", h.getReservation)
			r.Post("/reservations/{id}/cancel", h.cancelReservation)
			r.With(AdminOnly(h.AdminToken)).Get("/admin/sync/logs", h.syncLogs)
		})

		// a sync cycle outlives the request timeout
		r.With(AdminOnly(h.AdminToken)).Post("/admin/sync", h.triggerSync)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeProblem(w, http.StatusBadRequest, "Invalid request", validationDetail(verrs))
	case errors.Is(err, domain.ErrInvalidRange):
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, domain.ErrNoRate):
		writeProblem(w, http.StatusUnprocessableEntity, "No rate", "the stay cannot be priced for these dates and guests")
	case errors.Is(err, domain.ErrUnavailable):
		writeProblem(w, http.StatusConflict, "Unavailable", "the property is not available for these dates")
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrSyncInProgress):
		writeProblem(w, http.StatusConflict, "Sync in progress", "another sync run holds the lock")
	case errors.Is(err, domain.ErrUpstream):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("hostaway call failed")
		writeProblem(w, http.StatusBadGateway, "Upstream error", "Hostaway did not accept the request")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal error", "the request could not be completed")
	}
}

func validationDetail(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes v with a weak ETag and answers 304 when the client
// already holds that version.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

/********** query parsing **********/

type queryErr struct{ field, msg string }

func (e queryErr) Error() string { return e.field + " " + e.msg }

type params struct {
	r   *http.Request
	err error
}

func (p *params) str(k string) string { return strings.TrimSpace(p.r.URL.Query().Get(k)) }

func (p *params) integer(k string, def, lo, hi int) int {
	s := p.str(k)
	if s == "" || p.err != nil {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		p.err = queryErr{k, fmt.Sprintf("must be an integer between %d and %d", lo, hi)}
		return def
	}
	return n
}

func (p *params) number(k string) float64 {
	s := p.str(k)
	if s == "" || p.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		p.err = queryErr{k, "must be a non-negative number"}
		return 0
	}
	return f
}

func (p *params) date(k string, required bool) *time.Time {
	s := p.str(k)
	if p.err != nil {
		return nil
	}
	if s == "" {
		if required {
			p.err = queryErr{k, "is required (YYYY-MM-DD)"}
		}
		return nil
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		p.err = queryErr{k, "must be a date (YYYY-MM-DD)"}
		return nil
	}
	return &t
}

// propertyID resolves the {id} URL param, which may be a slug.
func (h *Handlers) propertyID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, nil
	}
	p, err := h.Q.GetProperty(r.Context(), raw)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

/********** handlers **********/

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	p := &params{r: r}
	f := domain.PropertyFilter{
		Q:        p.str("q"),
		Country:  p.str("country"),
		City:     p.str("city"),
		Amenity:  p.str("amenity"),
		Guests:   p.integer("guests", 0, 0, 100),
		Bedrooms: p.integer("bedrooms", 0, 0, 100),
		MinPrice: p.number("min_price"),
		MaxPrice: p.number("max_price"),
		Checkin:  p.date("checkin", false),
		Checkout: p.date("checkout", false),
		Limit:    p.integer("limit", 0, 1, 100),
		Offset:   p.integer("offset", 0, 0, 1_000_000),
	}
	if p.err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", p.err.Error())
		return
	}
	page, err := h.Q.Search(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, page)
}

func (h *Handlers) amenities(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.Amenities(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []string{}
	}
	writeCached(w, r, out)
}

func (h *Handlers) getProperty(w http.ResponseWriter, r *http.Request) {
	prop, err := h.Q.GetProperty(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, prop)
}

func (h *Handlers) availability(w http.ResponseWriter, r *http.Request) {
	p := &params{r: r}
	start, end := p.date("start", true), p.date("end", true)
	if p.err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", p.err.Error())
		return
	}
	id, err := h.propertyID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.Q.Availability(r.Context(), id, *start, *end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, v)
}

func (h *Handlers) rates(w http.ResponseWriter, r *http.Request) {
	p := &params{r: r}
	start, end := p.date("start", true), p.date("end", true)
	if p.err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", p.err.Error())
		return
	}
	id, err := h.propertyID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.Q.Rates(r.Context(), id, *start, *end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, v)
}

func (h *Handlers) price(w http.ResponseWriter, r *http.Request) {
	p := &params{r: r}
	checkin, checkout := p.date("checkin", true), p.date("checkout", true)
	guests := p.integer("guests", 1, 1, 100)
	if p.err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", p.err.Error())
		return
	}
	id, err := h.propertyID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.B.Quote(r.Context(), id, *checkin, *checkout, guests)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handlers) createReservation(w http.ResponseWriter, r *http.Request) {
	var req domain.ReservationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "request body must be a JSON reservation")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.B.CreateReservation(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/reservations/%d", rv.ID))
	writeJSON(w, http.StatusCreated, rv)
}

func (h *Handlers) reservationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return 0, false
	}
	return id, true
}

func (h *Handlers) getReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reservationID(w, r)
	if !ok {
		return
	}
	rv, err := h.B.Reservation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func (h *Handlers) cancelReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reservationID(w, r)
	if !ok {
		return
	}
	rv, err := h.B.CancelReservation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

// triggerSync starts a run in the background and returns 202. With
// ?wait=1 it blocks and returns the run report instead.
// triggerSync starts a cycle detached from the request. With ?wait=1 it
// answers with the report; a client that goes away does not stop the run.
func (h *Handlers) triggerSync(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	type result struct {
		rep domain.SyncReport
		err error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := h.S.SyncAll(ctx)
		if err != nil {
			log.Warn().Err(err).Str("run_id", rep.RunID).Msg("admin-triggered sync failed")
		}
		done <- result{rep, err}
	}()

	if r.URL.Query().Get("wait") != "1" {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}
	select {
	case res := <-done:
		if res.err != nil {
			writeError(w, r, res.err)
			return
		}
		writeJSON(w, http.StatusOK, res.rep)
	case <-r.Context().Done():
		log.Info().Msg("admin sync client gone, run continues")
	}
}

func (h *Handlers) syncLogs(w http.ResponseWriter, r *http.Request) {
	p := &params{r: r}
	limit := p.integer("limit", 100, 1, 500)
	if p.err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", p.err.Error())
		return
	}
	logs, err := h.Q.RecentLogs(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []domain.SyncLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
