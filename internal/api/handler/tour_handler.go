package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
)

// TourHandler serves the tour resource and its reports.
type TourHandler struct {
	*Factory[domain.Tour]
	tours ports.TourService
}

func NewTourHandler(store ports.Store[domain.Tour], tours ports.TourService, maxLimit int64) *TourHandler {
	return &TourHandler{
		// The rating rollup is owned by the recalculation and the slug is
		// derived from the name.
		Factory: NewFactory(store,
			WithMaxLimit[domain.Tour](maxLimit),
			WithReadOnly[domain.Tour]("ratingsAverage", "ratingsQuantity", "slug", "durationWeeks", "guideProfiles", "reviews"),
		),
		tours: tours,
	}
}

// AliasTopTours presets the query of the five best-rated, cheapest tours.
// Explicit query parameters are overwritten.
func AliasTopTours(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		q := c.QueryParams()
		q.Set("limit", "5")
		q.Set("sort", "-ratingsAverage,price")
		q.Set("fields", "name,price,ratingsAverage,summary,difficulty")
		c.Request().URL.RawQuery = q.Encode()
		return next(c)
	}
}

// Stats groups the top-rated tours by difficulty.
//
// @Summary      Tour statistics
// @Tags         tours
// @Produce      json
// @Success      200  {object}  dataResponse
// @Router       /tours/tour-stats [get]
func (h *TourHandler) Stats(c echo.Context) error {
	stats, err := h.tours.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success("stats", stats))
}

// MonthlyPlan counts tour starts per month of a year.
//
// @Summary      Monthly plan
// @Tags         tours
// @Produce      json
// @Param        year  path      int  true  "Calendar year"
// @Success      200   {object}  dataResponse
// @Failure      400   {object}  map[string]string
// @Security     BearerAuth
// @Router       /tours/monthly-plan/{year} [get]
func (h *TourHandler) MonthlyPlan(c echo.Context) error {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return domain.FieldValidation("year", "Please provide a valid year")
	}
	plan, err := h.tours.MonthlyPlan(c.Request().Context(), year)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success("plan", plan))
}

// Within lists tours starting inside a radius.
//
// @Summary      Tours within a radius
// @Tags         tours
// @Produce      json
// @Param        distance  path      number  true  "Radius"
// @Param        latlng    path      string  true  "Centre as lat,lng"
// @Param        unit      path      string  true  "mi or km"
// @Success      200       {object}  listResponse
// @Failure      400       {object}  map[string]string
// @Router       /tours/tours-within/{distance}/center/{latlng}/unit/{unit} [get]
func (h *TourHandler) Within(c echo.Context) error {
	distance, err := strconv.ParseFloat(c.Param("distance"), 64)
	if err != nil {
		return domain.FieldValidation("distance", "Please provide a positive distance")
	}
	tours, err := h.tours.Within(c.Request().Context(), distance, c.Param("latlng"), c.Param("unit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{
		Status:  statusSuccess,
		Results: len(tours),
		Data:    map[string]any{"data": tours},
	})
}

// Distances lists every tour with its distance from a point.
//
// @Summary      Distances to tours
// @Tags         tours
// @Produce      json
// @Param        latlng  path      string  true  "Origin as lat,lng"
// @Param        unit    path      string  true  "mi or km"
// @Success      200     {object}  dataResponse
// @Failure      400     {object}  map[string]string
// @Router       /tours/distances/{latlng}/unit/{unit} [get]
func (h *TourHandler) Distances(c echo.Context) error {
	distances, err := h.tours.Distances(c.Request().Context(), c.Param("latlng"), c.Param("unit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success("data", distances))
}
