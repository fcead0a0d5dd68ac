package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/atmx/parity-engine/internal/metrics"
	"github.com/atmx/parity-engine/internal/model"
	"github.com/atmx/parity-engine/internal/pricing"
	"github.com/atmx/parity-engine/internal/report"
	"github.com/atmx/parity-engine/internal/series"
	"github.com/atmx/parity-engine/internal/store"
)

const (
	// DefaultRangeDays is the window shown when a query names no dates.
	DefaultRangeDays = 30
	// MaxRangeDays caps a single dashboard query.
	MaxRangeDays = 366
)

// Query selects what a dashboard shows. Zero Markets means every catalog
// market.
type Query struct {
	Dates   []model.Date
	Markets []string
	Mode    report.Mode
	Metric  series.Metric
}

// ParseQuery reads ?start=&end=&markets=&mode=&metric=. A missing end
// defaults to today (UTC) and a missing start to DefaultRangeDays before
// end. When only start is given the window runs forward from it.
func ParseQuery(r *http.Request, now time.Time) (Query, error) {
	q := r.URL.Query()
	var out Query

	start, end := model.Date(q.Get("start")), model.Date(q.Get("end"))
	switch {
	case start == "" && end == "":
		end = model.DateOf(now.UTC())
		start = end.AddDays(-(DefaultRangeDays - 1))
	case start == "":
		if _, err := model.ParseDate(string(end)); err != nil {
			return out, err
		}
		start = end.AddDays(-(DefaultRangeDays - 1))
	case end == "":
		if _, err := model.ParseDate(string(start)); err != nil {
			return out, err
		}
		end = start.AddDays(DefaultRangeDays - 1)
	}
	if err := checkWindow(start, end); err != nil {
		return out, err
	}
	if days := int(end.Time().Sub(start.Time()).Hours()/24) + 1; days > MaxRangeDays {
		return out, fmt.Errorf("%w: range of %d days exceeds %d", errInvalidInput, days, MaxRangeDays)
	}
	dates, err := model.DateRange(start, end)
	if err != nil {
		return out, err
	}
	out.Dates = dates

	for _, id := range strings.Split(q.Get("markets"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			out.Markets = append(out.Markets, id)
		}
	}

	if out.Mode, err = report.ParseMode(q.Get("mode")); err != nil {
		return out, err
	}
	if out.Metric, err = series.ParseMetric(q.Get("metric")); err != nil {
		return out, err
	}
	return out, nil
}

// Build loads one snapshot for hotelID and derives the dashboard from it.
func (s *Service) Build(ctx context.Context, hotelID string, q Query) (*report.Dashboard, error) {
	started := time.Now()

	snap, err := s.store.Snapshot(ctx, hotelID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if _, ok := snap.Hotel(hotelID); !ok {
		return nil, fmt.Errorf("hotel %q: %w", hotelID, store.ErrNotFound)
	}

	markets := q.Markets
	if len(markets) == 0 {
		for _, m := range snap.Markets {
			markets = append(markets, m.ID)
		}
	}

	calc := pricing.NewCalculator(snap)
	set := series.Build(calc, snap.Markets, hotelID, q.Dates, markets, snap.ReferenceMarketID())
	countCells(set)

	d := report.BuildDashboard(set, snap, q.Mode, q.Metric)

	elapsed := time.Since(started)
	metrics.DashboardBuilds.WithLabelValues(string(q.Mode)).Inc()
	metrics.DashboardBuildSeconds.WithLabelValues(string(q.Mode)).Observe(elapsed.Seconds())
	slog.Debug("dashboard built",
		"hotel", hotelID,
		"mode", q.Mode,
		"metric", q.Metric,
		"markets", len(set.Series),
		"days", len(q.Dates),
		"elapsed", elapsed,
	)
	return d, nil
}

func countCells(set *series.Set) {
	var available, unavailable int
	for _, ser := range set.Series {
		for _, p := range ser.Prices {
			if p.Valid {
				available++
			} else {
				unavailable++
			}
		}
	}
	metrics.PriceCells.WithLabelValues("available").Add(float64(available))
	metrics.PriceCells.WithLabelValues("unavailable").Add(float64(unavailable))
}

// GetPrice handles GET /api/v1/hotels/{hotelID}/price?market=&date=
// Returns the full net price breakdown for one market and date.
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	hotelID := chi.URLParam(r, "hotelID")
	marketID := r.URL.Query().Get("market")
	if marketID == "" {
		s.fail(w, r, fmt.Errorf("%w: market is required", errInvalidInput))
		return
	}
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	snap, err := s.store.Snapshot(r.Context(), hotelID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, ok := snap.Hotel(hotelID); !ok {
		s.fail(w, r, fmt.Errorf("hotel %q: %w", hotelID, store.ErrNotFound))
		return
	}

	render.JSON(w, r, pricing.NewCalculator(snap).Quote(hotelID, marketID, date))
}

// GetDashboard handles GET /api/v1/hotels/{hotelID}/dashboard
func (s *Service) GetDashboard(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.Build(r.Context(), chi.URLParam(r, "hotelID"), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, d)
}

// ExportDashboard handles GET /api/v1/hotels/{hotelID}/export?format=
// and streams the dashboard table as a CSV or XLSX download.
func (s *Service) ExportDashboard(w http.ResponseWriter, r *http.Request) {
	file, err := s.export(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	metrics.Exports.WithLabelValues(string(file.format), "download").Inc()
	w.Header().Set("Content-Type", file.format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.name))
	w.WriteHeader(http.StatusOK)
	w.Write(file.data.Bytes())
}

// ArchiveResponse is returned by POST /hotels/{hotelID}/archive.
type ArchiveResponse struct {
	Key    string `json:"key"`
	Format string `json:"format"`
	Bytes  int    `json:"bytes"`
}

// ArchiveDashboard handles POST /api/v1/hotels/{hotelID}/archive and uploads
// the export to the object store under <hotelID>/<file name>.
func (s *Service) ArchiveDashboard(w http.ResponseWriter, r *http.Request) {
	if s.archiver == nil {
		s.fail(w, r, errArchiveDisabled)
		return
	}
	file, err := s.export(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	size := file.data.Len()
	name := path.Join(chi.URLParam(r, "hotelID"), file.name)
	key, err := s.archiver.Put(r.Context(), name, &file.data, file.format.ContentType())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	metrics.Exports.WithLabelValues(string(file.format), "s3").Inc()
	slog.Info("dashboard archived", "key", key, "format", file.format, "bytes", size)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ArchiveResponse{Key: key, Format: string(file.format), Bytes: size})
}

type exportFile struct {
	name   string
	format report.Format
	data   bytes.Buffer
}

func (s *Service) export(r *http.Request) (*exportFile, error) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return nil, err
	}
	q, err := ParseQuery(r, s.now())
	if err != nil {
		return nil, err
	}
	d, err := s.Build(r.Context(), chi.URLParam(r, "hotelID"), q)
	if err != nil {
		return nil, err
	}

	file := &exportFile{name: report.FileName(q.Mode, format, s.now()), format: format}
	if err := report.Export(&file.data, d, format); err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}
	return file, nil
}
