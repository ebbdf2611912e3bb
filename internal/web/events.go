package web

import (
	"net/http"
	"time"

	"dealercal/internal/calendar"
	"dealercal/internal/layout"
	appLog "dealercal/internal/log"
	"dealercal/internal/model"
)

// GET /api/events?from=YYYY-MM-DD&to=YYYY-MM-DD
//
// Without bounds the window is the configured backfill/horizon around today.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	today := s.today()

	from := q.Get("from")
	if from == "" {
		from = calendar.FormatDate(today.AddDate(0, 0, -s.cfg.BackfillDays))
	} else if _, err := calendar.ParseDate(from); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	to := q.Get("to")
	if to == "" {
		to = calendar.FormatDate(today.AddDate(0, 0, s.cfg.HorizonDays))
	} else if _, err := calendar.ParseDate(to); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date")
		return
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		From:   from,
		To:     to,
		Events: s.store.InRange(from, to),
	})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if ev.Imported() {
		writeError(w, http.StatusBadRequest, "source_id is reserved for imported events")
		return
	}

	created, err := s.store.Create(ev)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := s.store.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if existing.Imported() {
		writeError(w, http.StatusConflict, "imported events are read-only")
		return
	}

	var ev model.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ev.ID = id
	ev.SourceID = ""
	ev.InstanceKey = ""

	stored, err := s.store.Update(ev)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/layout/week?date=YYYY-MM-DD&order=start|given
//
// Lays out the week containing date (today by default).
func (s *Server) handleWeekLayout(w http.ResponseWriter, r *http.Request) {
	day := s.today()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := calendar.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		day = d
	}

	week := calendar.WeekOf(day, s.weekStart())
	events := s.store.InRange(week.First(), week.Last())
	opts := s.layoutOptions(r)

	res := layout.LayoutWeek(week, events, opts)
	if len(res.Dropped) > 0 || len(res.Overflow) > 0 {
		s.logDegraded(week, res)
	}

	writeJSON(w, http.StatusOK, weekResponse{
		Week:   week,
		Result: res,
		Timed:  layout.TimedByDay(week, events),
	})
}

// GET /api/layout/month?month=YYYY-MM&order=start|given
func (s *Server) handleMonthLayout(w http.ResponseWriter, r *http.Request) {
	today := s.today()
	year, month := today.Year(), today.Month()
	if v := r.URL.Query().Get("month"); v != "" {
		y, m, err := calendar.ParseMonth(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid month")
			return
		}
		year, month = y, m
	}

	weeks := calendar.MonthGrid(year, month, s.weekStart())
	events := s.store.InRange(weeks[0].First(), weeks[len(weeks)-1].Last())
	layouts := layout.LayoutMonth(weeks, events, s.layoutOptions(r))
	for _, wl := range layouts {
		if len(wl.Result.Dropped) > 0 || len(wl.Result.Overflow) > 0 {
			s.logDegraded(wl.Week, wl.Result)
		}
	}

	writeJSON(w, http.StatusOK, monthResponse{
		Month: time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01"),
		Weeks: layouts,
	})
}

func (s *Server) logDegraded(week layout.Week, res layout.Result) {
	appLog.Info("layout degraded",
		"week", week.First(),
		"dropped", len(res.Dropped),
		"overflow", len(res.Overflow),
		"max_rows", s.cfg.Layout.MaxRows,
	)
}

type eventsResponse struct {
	From   string        `json:"from"`
	To     string        `json:"to"`
	Events []model.Event `json:"events"`
}

type weekResponse struct {
	Week   layout.Week                       `json:"week"`
	Result layout.Result                     `json:"layout"`
	Timed  [layout.DaysPerWeek][]model.Event `json:"timed"`
}

type monthResponse struct {
	Month string              `json:"month"`
	Weeks []layout.WeekLayout `json:"weeks"`
}
