package handler

import (
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
)

// ReviewHandler serves /reviews and /tours/:tourId/reviews.
type ReviewHandler struct {
	*Factory[domain.Review]
	edit *Factory[domain.Review]
}

func NewReviewHandler(store ports.Store[domain.Review], maxLimit int64) *ReviewHandler {
	return &ReviewHandler{
		Factory: NewFactory(store, WithMaxLimit[domain.Review](maxLimit), WithReadOnly[domain.Review]("user", "author")),
		// A review never moves to another tour or author.
		edit: NewFactory(store, WithReadOnly[domain.Review]("tour", "user", "author")),
	}
}

// CreateReview posts a review by the current user. The tour comes from the
// nested route when the body does not name one.
//
// @Summary      Create review
// @Tags         reviews
// @Accept       json
// @Produce      json
// @Param        tourId  path      string  false  "Tour id (nested route)"
// @Success      201     {object}  dataResponse
// @Failure      400     {object}  map[string]string
// @Failure      409     {object}  map[string]string
// @Security     BearerAuth
// @Router       /tours/{tourId}/reviews [post]
func (h *ReviewHandler) CreateReview() echo.HandlerFunc {
	return h.CreateWith(func(c echo.Context, r *domain.Review) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}
		r.User = user.ID
		if r.Tour.IsZero() && c.Param("tourId") != "" {
			id, err := primitive.ObjectIDFromHex(c.Param("tourId"))
			if err != nil {
				return domain.NotFound("No tour found with that ID")
			}
			r.Tour = id
		}
		return nil
	})
}

// UpdateReview edits the text or rating of a review.
func (h *ReviewHandler) UpdateReview(c echo.Context) error {
	return h.edit.UpdateOne(c)
}

// ByTour scopes listings under /tours/:tourId/reviews to that tour.
func ByTour(c echo.Context) (bson.M, error) {
	raw := c.Param("tourId")
	if raw == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return nil, domain.NotFound("No tour found with that ID")
	}
	return bson.M{"tour": id}, nil
}
