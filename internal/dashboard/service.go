// Package dashboard provides the HTTP handlers for maintaining the pricing
// catalog (hotels, markets, contracts, discounts, exchange rates, settings)
// and for serving, exporting and archiving parity dashboards.
//
// All monetary values use shopspring/decimal. Every write appends a changelog
// entry and notifies WebSocket clients.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/parity-engine/internal/metrics"
	"github.com/atmx/parity-engine/internal/model"
	"github.com/atmx/parity-engine/internal/report"
	"github.com/atmx/parity-engine/internal/series"
	"github.com/atmx/parity-engine/internal/store"
)

var (
	errInvalidInput    = errors.New("invalid input")
	errArchiveDisabled = errors.New("export archival is not configured")
)

// DefaultChangelogLimit is the page size of GET /changelog without ?limit.
const DefaultChangelogLimit = 100

var hundred = decimal.NewFromInt(100)

// Archiver stores exported files. *blob.Client satisfies it.
type Archiver interface {
	Put(ctx context.Context, name string, data io.Reader, contentType string) (string, error)
}

// Service handles catalog writes and dashboard queries over a Store.
type Service struct {
	store    store.Store
	hub      *WSHub   // optional
	archiver Archiver // optional; archive requests fail with 503 without it
	validate *validator.Validate
	now      func() time.Time

	allowReset bool
}

// NewService creates a dashboard service. hub and archiver may be nil.
func NewService(st store.Store, hub *WSHub, archiver Archiver) *Service {
	return &Service{
		store:    st,
		hub:      hub,
		archiver: archiver,
		validate: validator.New(),
		now:      time.Now,
	}
}

// EnableReset mounts POST /reset, which wipes the store and reloads the
// sample data. Call it before Routes.
func (s *Service) EnableReset() {
	s.allowReset = true
}

// Routes mounts the API on r, typically under /api/v1.
func (s *Service) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Get("/hotels", s.ListHotels)
	r.Post("/hotels", s.CreateHotel)
	r.Get("/hotels/{hotelID}", s.GetHotel)
	r.Get("/hotels/{hotelID}/price", s.GetPrice)
	r.Get("/hotels/{hotelID}/dashboard", s.GetDashboard)
	r.Get("/hotels/{hotelID}/export", s.ExportDashboard)
	r.Post("/hotels/{hotelID}/archive", s.ArchiveDashboard)

	r.Get("/markets", s.ListMarkets)
	r.Post("/markets", s.CreateMarket)
	r.Get("/markets/{marketID}", s.GetMarket)

	r.Get("/contracts", s.ListContracts)
	r.Post("/contracts", s.CreateContract)
	r.Get("/discounts", s.ListDiscounts)
	r.Post("/discounts", s.CreateDiscount)
	r.Get("/rates", s.ListRates)
	r.Post("/rates", s.CreateRate)

	r.Get("/settings", s.GetSettings)
	r.Put("/settings", s.UpdateSettings)
	r.Get("/changelog", s.ListChangelog)

	if s.allowReset {
		r.Post("/reset", s.ResetData)
	}
}

// --- Request types ---

// CreateHotelRequest is the JSON body for POST /hotels. An empty ID is
// replaced by a generated one.
type CreateHotelRequest struct {
	ID   string `json:"id" validate:"omitempty,max=64"`
	Name string `json:"name" validate:"required,max=200"`
}

// CreateMarketRequest is the JSON body for POST /markets.
type CreateMarketRequest struct {
	ID       string `json:"id" validate:"omitempty,max=64"`
	Name     string `json:"name" validate:"required,max=200"`
	Currency string `json:"currency" validate:"required,len=3,alpha"` // ISO 4217
}

// CreateContractRequest is the JSON body for POST /contracts.
type CreateContractRequest struct {
	HotelID    string          `json:"hotel_id" validate:"required"`
	MarketID   string          `json:"market_id" validate:"required"`
	StartDate  model.Date      `json:"start_date" validate:"required"`
	EndDate    model.Date      `json:"end_date" validate:"required"`
	Price      decimal.Decimal `json:"price"`      // per person, market-local currency
	Commission decimal.Decimal `json:"commission"` // percent
}

// CreateDiscountRequest is the JSON body for POST /discounts.
type CreateDiscountRequest struct {
	HotelID   string          `json:"hotel_id" validate:"required"`
	MarketID  string          `json:"market_id" validate:"required"`
	StartDate model.Date      `json:"start_date" validate:"required"`
	EndDate   model.Date      `json:"end_date" validate:"required"`
	Percent   decimal.Decimal `json:"percent"`
}

// CreateRateRequest is the JSON body for POST /rates.
type CreateRateRequest struct {
	MarketID string          `json:"market_id" validate:"required"`
	Date     model.Date      `json:"date" validate:"required"`
	Rate     decimal.Decimal `json:"rate"` // reference = local × rate
}

// SettingsRequest is the JSON body for PUT /settings.
type SettingsRequest struct {
	ReferenceMarketID string          `json:"reference_market_id"`
	WarningThreshold  decimal.Decimal `json:"warning_threshold"`
	CriticalThreshold decimal.Decimal `json:"critical_threshold"`
}

// SettingsResponse is the body of GET /settings. LastUpdated is the time of
// the newest changelog entry and is omitted before the first write.
type SettingsResponse struct {
	model.Settings
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// --- Catalog handlers ---

// CreateHotel handles POST /api/v1/hotels
func (s *Service) CreateHotel(w http.ResponseWriter, r *http.Request) {
	var req CreateHotelRequest
	if !s.decode(w, r, &req) {
		return
	}

	hotel := &model.Hotel{ID: idOrNew(req.ID), Name: strings.TrimSpace(req.Name)}
	if err := s.store.CreateHotel(r.Context(), hotel); err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(r.Context(), "hotel", fmt.Sprintf("Hotel %s created", hotel.Name), WSMessage{
		Type:    MsgRecordCreated,
		ID:      hotel.ID,
		HotelID: hotel.ID,
	})

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, hotel)
}

// GetHotel handles GET /api/v1/hotels/{hotelID}
func (s *Service) GetHotel(w http.ResponseWriter, r *http.Request) {
	hotel, err := s.store.GetHotel(r.Context(), chi.URLParam(r, "hotelID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, hotel)
}

// ListHotels handles GET /api/v1/hotels
func (s *Service) ListHotels(w http.ResponseWriter, r *http.Request) {
	hotels, err := s.store.ListHotels(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, nonNil(hotels))
}

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if !s.decode(w, r, &req) {
		return
	}

	market := &model.Market{
		ID:       idOrNew(req.ID),
		Name:     strings.TrimSpace(req.Name),
		Currency: strings.ToUpper(req.Currency),
	}
	if err := s.store.CreateMarket(r.Context(), market); err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(r.Context(), "market",
		fmt.Sprintf("Market %s (%s) created", market.Name, market.Currency),
		WSMessage{Type: MsgRecordCreated, ID: market.ID, MarketID: market.ID})

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, market)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	market, err := s.store.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, market)
}

// ListMarkets handles GET /api/v1/markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, nonNil(markets))
}

// --- Effective-dated records ---

// CreateContract handles POST /api/v1/contracts
func (s *Service) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	if err := s.checkPair(ctx, req.HotelID, req.MarketID); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := checkWindow(req.StartDate, req.EndDate); err != nil {
		s.fail(w, r, err)
		return
	}
	if !req.Price.IsPositive() {
		s.fail(w, r, fmt.Errorf("%w: price must be positive", errInvalidInput))
		return
	}
	if err := checkPercent("commission", req.Commission); err != nil {
		s.fail(w, r, err)
		return
	}

	c := &model.Contract{
		ID:         uuid.New().String(),
		HotelID:    req.HotelID,
		MarketID:   req.MarketID,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Price:      req.Price,
		Commission: req.Commission,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.InsertContract(ctx, c); err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(ctx, "contract",
		fmt.Sprintf("Contract %s/%s %s..%s price %s commission %s%%",
			c.HotelID, c.MarketID, c.StartDate, c.EndDate, c.Price, c.Commission),
		WSMessage{Type: MsgRecordCreated, ID: c.ID, HotelID: c.HotelID, MarketID: c.MarketID})

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, c)
}

// ListContracts handles GET /api/v1/contracts?hotel_id=&market_id=
func (s *Service) ListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.store.ListContracts(r.Context(), filterOf(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, nonNil(contracts))
}

// CreateDiscount handles POST /api/v1/discounts
func (s *Service) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req CreateDiscountRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	if err := s.checkPair(ctx, req.HotelID, req.MarketID); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := checkWindow(req.StartDate, req.EndDate); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := checkPercent("percent", req.Percent); err != nil {
		s.fail(w, r, err)
		return
	}

	d := &model.Discount{
		ID:        uuid.New().String(),
		HotelID:   req.HotelID,
		MarketID:  req.MarketID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Percent:   req.Percent,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertDiscount(ctx, d); err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(ctx, "discount",
		fmt.Sprintf("Discount %s/%s %s..%s %s%%", d.HotelID, d.MarketID, d.StartDate, d.EndDate, d.Percent),
		WSMessage{Type: MsgRecordCreated, ID: d.ID, HotelID: d.HotelID, MarketID: d.MarketID})

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, d)
}

// ListDiscounts handles GET /api/v1/discounts?hotel_id=&market_id=
func (s *Service) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	discounts, err := s.store.ListDiscounts(r.Context(), filterOf(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, nonNil(discounts))
}

// CreateRate handles POST /api/v1/rates
func (s *Service) CreateRate(w http.ResponseWriter, r *http.Request) {
	var req CreateRateRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	if _, err := s.store.GetMarket(ctx, req.MarketID); err != nil {
		s.fail(w, r, unknownRef("market", req.MarketID, err))
		return
	}
	if _, err := model.ParseDate(string(req.Date)); err != nil {
		s.fail(w, r, err)
		return
	}
	if !req.Rate.IsPositive() {
		s.fail(w, r, fmt.Errorf("%w: rate must be positive", errInvalidInput))
		return
	}

	rate := &model.ExchangeRate{
		ID:        uuid.New().String(),
		MarketID:  req.MarketID,
		Date:      req.Date,
		Rate:      req.Rate,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertRate(ctx, rate); err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(ctx, "rate",
		fmt.Sprintf("Rate %s on %s = %s", rate.MarketID, rate.Date, rate.Rate),
		WSMessage{Type: MsgRecordCreated, ID: rate.ID, MarketID: rate.MarketID})

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rate)
}

// ListRates handles GET /api/v1/rates?market_id=
func (s *Service) ListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.store.ListRates(r.Context(), filterOf(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, nonNil(rates))
}

// --- Settings & audit ---

// GetSettings handles GET /api/v1/settings
func (s *Service) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	latest, err := s.store.ListChangelog(ctx, 1)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := SettingsResponse{Settings: settings}
	if len(latest) > 0 {
		resp.LastUpdated = &latest[0].Timestamp
	}
	render.JSON(w, r, resp)
}

// UpdateSettings handles PUT /api/v1/settings
func (s *Service) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	if req.ReferenceMarketID != "" {
		if _, err := s.store.GetMarket(ctx, req.ReferenceMarketID); err != nil {
			s.fail(w, r, unknownRef("reference market", req.ReferenceMarketID, err))
			return
		}
	}
	if req.WarningThreshold.IsNegative() {
		s.fail(w, r, fmt.Errorf("%w: warning_threshold must not be negative", errInvalidInput))
		return
	}
	if req.CriticalThreshold.LessThan(req.WarningThreshold) {
		s.fail(w, r, fmt.Errorf("%w: critical_threshold must not be below warning_threshold", errInvalidInput))
		return
	}

	settings := model.Settings{
		ReferenceMarketID: req.ReferenceMarketID,
		WarningThreshold:  req.WarningThreshold,
		CriticalThreshold: req.CriticalThreshold,
	}
	if err := s.store.UpdateSettings(ctx, settings); err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(ctx, "settings",
		fmt.Sprintf("Settings updated: reference %q, warning %s%%, critical %s%%",
			settings.ReferenceMarketID, settings.WarningThreshold, settings.CriticalThreshold),
		WSMessage{Type: MsgSettingsUpdated})

	render.JSON(w, r, settings)
}

// ListChangelog handles GET /api/v1/changelog?limit=
func (s *Service) ListChangelog(w http.ResponseWriter, r *http.Request) {
	limit := DefaultChangelogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, r, fmt.Errorf("%w: limit must be a positive integer", errInvalidInput))
			return
		}
		limit = n
	}

	entries, err := s.store.ListChangelog(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, nonNil(entries))
}

// ResetData handles POST /api/v1/reset
func (s *Service) ResetData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.store.Reset(ctx); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := store.SeedSample(ctx, s.store, s.now()); err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(ctx, "system", "Data reset to the sample set", WSMessage{Type: MsgDataReset})

	render.JSON(w, r, map[string]string{"status": "reset"})
}

// --- Helpers ---

// publish records a successful write: changelog entry, metric, log line and
// WebSocket notification. The write itself has already succeeded, so a
// changelog failure is only logged.
func (s *Service) publish(ctx context.Context, kind, message string, msg WSMessage) {
	entry := &model.ChangelogEntry{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   message,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.AppendChangelog(ctx, entry); err != nil {
		slog.Error("changelog append failed", "kind", kind, "err", err)
	}

	metrics.RecordsCreated.WithLabelValues(kind).Inc()
	slog.Info("record created", "kind", kind, "id", msg.ID, "message", message)

	if s.hub != nil {
		msg.Kind = kind
		msg.Message = message
		s.hub.Broadcast(msg)
	}
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Service) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		writeError(w, r, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			writeError(w, r, "validation: "+strings.Join(fields, "; "), http.StatusBadRequest)
			return false
		}
		writeError(w, r, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// fail maps err onto a status code and writes it as a JSON error.
func (s *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeError(w, r, msg, status)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errArchiveDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, errInvalidInput),
		errors.Is(err, model.ErrInvalidDate),
		errors.Is(err, model.ErrInvalidRange),
		errors.Is(err, series.ErrUnknownMetric),
		errors.Is(err, report.ErrUnknownMode),
		errors.Is(err, report.ErrUnknownFormat):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message string, status int) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}

// checkPair verifies that both sides of a (hotel, market) key exist.
func (s *Service) checkPair(ctx context.Context, hotelID, marketID string) error {
	if _, err := s.store.GetHotel(ctx, hotelID); err != nil {
		return unknownRef("hotel", hotelID, err)
	}
	if _, err := s.store.GetMarket(ctx, marketID); err != nil {
		return unknownRef("market", marketID, err)
	}
	return nil
}

// unknownRef turns a lookup miss on a referenced record into a 400.
func unknownRef(what, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: unknown %s %q", errInvalidInput, what, id)
	}
	return err
}

func checkWindow(start, end model.Date) error {
	for _, d := range []model.Date{start, end} {
		if _, err := model.ParseDate(string(d)); err != nil {
			return err
		}
	}
	if end < start {
		return fmt.Errorf("%w: %s > %s", model.ErrInvalidRange, start, end)
	}
	return nil
}

func checkPercent(field string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s must be between 0 and 100", errInvalidInput, field)
	}
	return nil
}

func filterOf(r *http.Request) store.Filter {
	q := r.URL.Query()
	return store.Filter{HotelID: q.Get("hotel_id"), MarketID: q.Get("market_id")}
}

func idOrNew(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.New().String()
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
