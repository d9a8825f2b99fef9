package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/example/ridedispatch/internal/auth"
	"github.com/example/ridedispatch/internal/booking/domain"
	"github.com/example/ridedispatch/internal/booking/service"
	"github.com/example/ridedispatch/internal/promo"
)

// HTTP exposes the booking and promo endpoints. Caller identity comes from
// the JWT subject, never from the request body.
type HTTP struct {
	svc    *service.Engine
	promos *promo.Service
	secret string
}

// NewHTTP constructs a handler.
func NewHTTP(svc *service.Engine, promos *promo.Service, jwtSecret string) *HTTP {
	return &HTTP{svc: svc, promos: promos, secret: jwtSecret}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.secret, auth.RoleRider))
		r.Post("/v1/bookings", h.createBooking)
		r.Post("/v1/bookings/{id}/cancel", h.cancelBooking)
		r.Post("/v1/promos/redeem", h.redeemPromo)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.secret, auth.RoleDriver))
		r.Post("/v1/bookings/{id}/accept", h.acceptBooking)
		r.Post("/v1/bookings/{id}/reject", h.rejectBooking)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.secret, auth.RoleRider, auth.RoleDriver))
		r.Get("/v1/bookings/{id}", h.getBooking)
	})
	return r
}

type createBookingRequest struct {
	Pickup          *domain.GeoPoint `json:"pickup"`
	Dropoff         *domain.GeoPoint `json:"dropoff"`
	PaymentMethod   string           `json:"payment_method"`
	Fare            *domain.Fare     `json:"fare"`
	DistanceKm      float64          `json:"distance_km"`
	DurationMinutes float64          `json:"duration_minutes"`
	RoutePolyline   string           `json:"route_polyline"`
}

func (h *HTTP) createBooking(w http.ResponseWriter, r *http.Request) {
	riderID, ok := callerID(w, r)
	if !ok {
		return
	}
	var payload createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	booking, err := h.svc.CreateBooking(r.Context(), service.CreateBookingRequest{
		RiderID:         riderID,
		Pickup:          payload.Pickup,
		Dropoff:         payload.Dropoff,
		PaymentMethod:   payload.PaymentMethod,
		Fare:            payload.Fare,
		DistanceKm:      payload.DistanceKm,
		DurationMinutes: payload.DurationMinutes,
		RoutePolyline:   payload.RoutePolyline,
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *HTTP) getBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	booking, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *HTTP) acceptBooking(w http.ResponseWriter, r *http.Request) {
	driverID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	booking, err := h.svc.Accept(r.Context(), id, driverID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *HTTP) rejectBooking(w http.ResponseWriter, r *http.Request) {
	driverID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	booking, err := h.svc.Reject(r.Context(), id, driverID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *HTTP) cancelBooking(w http.ResponseWriter, r *http.Request) {
	riderID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	booking, err := h.svc.Cancel(r.Context(), id, riderID, "Cancelled by rider")
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type redeemPromoRequest struct {
	Code string  `json:"code"`
	Fare float64 `json:"fare"`
}

func (h *HTTP) redeemPromo(w http.ResponseWriter, r *http.Request) {
	riderID, ok := callerID(w, r)
	if !ok {
		return
	}
	var payload redeemPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.promos.Redeem(r.Context(), riderID, payload.Code, payload.Fare)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// callerID extracts the authenticated user id. The auth middleware has run
// by the time handlers execute, so a miss here is a server bug.
func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing claims", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	id, err := claims.UserID()
	if err != nil {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPreconditionFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
