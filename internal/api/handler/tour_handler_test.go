package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/query"
)

// captureStore keeps the last created document and returns it unchanged.
type captureStore[T any] struct {
	created *T
	found   *T
	set     bson.M
}

func (s *captureStore[T]) Create(_ context.Context, doc *T) (*T, error) {
	s.created = doc
	return doc, nil
}

func (s *captureStore[T]) FindByID(context.Context, string, ...string) (*T, error) {
	if s.found == nil {
		return nil, domain.NotFound("No document found with that ID")
	}
	cp := *s.found
	return &cp, nil
}

func (s *captureStore[T]) FindMany(context.Context, query.Spec) ([]*T, error) { return nil, nil }

func (s *captureStore[T]) UpdateByID(context.Context, string, bson.M) (*T, error) {
	return nil, errors.New("not used")
}

func (s *captureStore[T]) DeleteByID(context.Context, string) error { return nil }

type stubTourService struct {
	distance float64
	latlng   string
	unit     string
	year     int
}

func (s *stubTourService) Stats(context.Context) ([]domain.TourStat, error) {
	return []domain.TourStat{{Difficulty: "easy", NumTours: 4}}, nil
}

func (s *stubTourService) MonthlyPlan(_ context.Context, year int) ([]domain.MonthlyPlan, error) {
	s.year = year
	return []domain.MonthlyPlan{{Month: 7, NumTourStarts: 3, Tours: []string{"The Sea Explorer"}}}, nil
}

func (s *stubTourService) Within(_ context.Context, distance float64, latlng, unit string) ([]*domain.Tour, error) {
	s.distance, s.latlng, s.unit = distance, latlng, unit
	return []*domain.Tour{{Name: "The Forest Hiker"}}, nil
}

func (s *stubTourService) Distances(_ context.Context, latlng, unit string) ([]domain.TourDistance, error) {
	s.latlng, s.unit = latlng, unit
	return []domain.TourDistance{{ID: primitive.NewObjectID(), Name: "The Forest Hiker", Distance: 12.3}}, nil
}

func TestAliasTopTours(t *testing.T) {
	e := newTestEcho()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/tours/top-5-cheap?limit=50&difficulty=easy", nil), httptest.NewRecorder())

	var seen map[string]string
	handler := AliasTopTours(func(c echo.Context) error {
		seen = map[string]string{
			"limit":      c.QueryParam("limit"),
			"sort":       c.QueryParam("sort"),
			"fields":     c.QueryParam("fields"),
			"difficulty": c.QueryParam("difficulty"),
		}
		return nil
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	want := map[string]string{
		"limit":      "5",
		"sort":       "-ratingsAverage,price",
		"fields":     "name,price,ratingsAverage,summary,difficulty",
		"difficulty": "easy",
	}
	for k, v := range want {
		if seen[k] != v {
			t.Errorf("%s: expected %q, got %q", k, v, seen[k])
		}
	}
}

func TestTourHandler_CreateIgnoresRollup(t *testing.T) {
	e := newTestEcho()
	store := &captureStore[domain.Tour]{}
	h := NewTourHandler(store, &stubTourService{}, 100)

	body := `{"name":"The Snow Adventurer","duration":4,"maxGroupSize":10,"difficulty":"difficult",
		"price":997,"summary":"Exciting adventure in the snow","imageCover":"tour-3-cover.jpg",
		"ratingsAverage":1,"ratingsQuantity":1000,"slug":"hacked"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/tours", body), rec)

	if err := h.CreateOne(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	got := store.created
	if got.RatingsAverage != domain.DefaultRatingsAverage || got.RatingsQuantity != 0 {
		t.Fatalf("rollup must not be client-writable, got %v/%d", got.RatingsAverage, got.RatingsQuantity)
	}
	if got.Slug != "the-snow-adventurer" {
		t.Fatalf("expected derived slug, got %q", got.Slug)
	}
}

func TestTourHandler_CreateRejectsDiscountAbovePrice(t *testing.T) {
	e := newTestEcho()
	h := NewTourHandler(&captureStore[domain.Tour]{}, &stubTourService{}, 100)

	body := `{"name":"The Snow Adventurer","duration":4,"maxGroupSize":10,"difficulty":"difficult",
		"price":100,"priceDiscount":150,"summary":"Exciting","imageCover":"tour-3-cover.jpg"}`
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/tours", body), httptest.NewRecorder())

	err := h.CreateOne(c)
	var de *domain.Error
	if !errors.As(err, &de) || de.Field != "priceDiscount" {
		t.Fatalf("expected priceDiscount validation error, got %v", err)
	}
}

func TestTourHandler_Within(t *testing.T) {
	e := newTestEcho()
	svc := &stubTourService{}
	h := NewTourHandler(&captureStore[domain.Tour]{}, svc, 100)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("distance", "latlng", "unit")
	c.SetParamValues("233", "34.111745,-118.113491", "mi")

	if err := h.Within(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if svc.distance != 233 || svc.latlng != "34.111745,-118.113491" || svc.unit != "mi" {
		t.Fatalf("unexpected service call %+v", svc)
	}
	resp := decodeBody(t, rec)
	if resp["status"] != "success" || resp["results"] != float64(1) {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestTourHandler_Within_BadDistance(t *testing.T) {
	e := newTestEcho()
	h := NewTourHandler(&captureStore[domain.Tour]{}, &stubTourService{}, 100)

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("distance", "latlng", "unit")
	c.SetParamValues("far", "34.1,-118.1", "mi")

	if err := h.Within(c); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTourHandler_MonthlyPlan(t *testing.T) {
	e := newTestEcho()
	svc := &stubTourService{}
	h := NewTourHandler(&captureStore[domain.Tour]{}, svc, 100)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("year")
	c.SetParamValues("2021")

	if err := h.MonthlyPlan(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if svc.year != 2021 {
		t.Fatalf("expected year 2021, got %d", svc.year)
	}
	data := decodeBody(t, rec)["data"].(map[string]any)
	if _, ok := data["plan"]; !ok {
		t.Fatalf("expected plan in data, got %v", data)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("year")
	c.SetParamValues("next")
	if err := h.MonthlyPlan(c); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTourHandler_Stats(t *testing.T) {
	e := newTestEcho()
	h := NewTourHandler(&captureStore[domain.Tour]{}, &stubTourService{}, 100)

	rec := httptest.NewRecorder()
	if err := h.Stats(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	data := decodeBody(t, rec)["data"].(map[string]any)
	if stats, ok := data["stats"].([]any); !ok || len(stats) != 1 {
		t.Fatalf("unexpected stats %v", data)
	}
}
