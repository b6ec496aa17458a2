//go:build integration

package mongo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/query"
	"github.com/natours/tours-api/internal/core/service"
	"github.com/natours/tours-api/internal/testutil"
)

var testURI string

func TestMain(m *testing.M) {
	tc := testutil.MustStartMongo()
	testURI = tc.Addr
	code := m.Run()
	tc.Terminate()
	os.Exit(code)
}

// newDatabase returns an empty database dropped when the test ends.
func newDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()
	client, db, err := Connect(ctx, Config{URI: testURI, Database: "natours_" + primitive.NewObjectID().Hex()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func newTour(name string, price float64, difficulty string) *domain.Tour {
	return &domain.Tour{
		Name:         name,
		Duration:     5,
		MaxGroupSize: 10,
		Difficulty:   difficulty,
		Price:        price,
		Summary:      "A tour",
		ImageCover:   "cover.jpg",
	}
}

func mustCreateTour(t *testing.T, repo *TourRepository, tour *domain.Tour) *domain.Tour {
	t.Helper()
	created, err := repo.Create(context.Background(), tour)
	if err != nil {
		t.Fatalf("create tour %q: %v", tour.Name, err)
	}
	return created
}

func mustCreateUser(t *testing.T, repo *UserRepository, name, email string) *domain.User {
	t.Helper()
	created, err := repo.Create(context.Background(), &domain.User{Name: name, Email: email, Password: "hash"})
	if err != nil {
		t.Fatalf("create user %q: %v", email, err)
	}
	return created
}

func TestUserRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepository(newDatabase(t))
	if err := EnsureIndexes(ctx, users); err != nil {
		t.Fatalf("indexes: %v", err)
	}

	u := mustCreateUser(t, users, "Alice", "Alice@Example.com ")
	if u.Email != "alice@example.com" || u.Role != domain.RoleUser || u.Photo != "default.jpg" {
		t.Fatalf("defaults not applied: %+v", u)
	}

	found, err := users.FindByEmail(ctx, "ALICE@example.com")
	if err != nil || found.ID != u.ID {
		t.Fatalf("find by email: %v %v", found, err)
	}

	_, err = users.Create(ctx, &domain.User{Name: "Alice 2", Email: "alice@example.com"})
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.ErrConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	if err := users.Deactivate(ctx, u.ID.Hex()); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := users.FindByID(ctx, u.ID.Hex()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deactivated user still visible: %v", err)
	}
	if err := users.Deactivate(ctx, u.ID.Hex()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second deactivate should not find the user, got %v", err)
	}
}

func TestUserRepository_ResetToken(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepository(newDatabase(t))
	u := mustCreateUser(t, users, "Bob", "bob@example.com")
	now := time.Now()

	if err := users.SetResetToken(ctx, u.ID.Hex(), "digest", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("set reset token: %v", err)
	}
	if _, err := users.ClaimResetToken(ctx, "digest", now.Add(11*time.Minute)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expired token should not match, got %v", err)
	}
	claimed, err := users.ClaimResetToken(ctx, "digest", now)
	if err != nil {
		t.Fatalf("claim reset token: %v", err)
	}
	if claimed.ID != u.ID || claimed.PasswordResetToken != "" || claimed.PasswordResetExpires != nil {
		t.Fatalf("unexpected claimed user: %+v", claimed)
	}
	if _, err := users.ClaimResetToken(ctx, "digest", now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("token should be spent, got %v", err)
	}

	if err := users.SetResetToken(ctx, u.ID.Hex(), "digest-2", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("set reset token: %v", err)
	}
	changedAt := now.Add(-time.Second)
	if err := users.SetPassword(ctx, u.ID.Hex(), "new-hash", changedAt); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if _, err := users.ClaimResetToken(ctx, "digest-2", now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("token should be cleared by a password change, got %v", err)
	}
	updated, err := users.FindByID(ctx, u.ID.Hex())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if updated.Password != "new-hash" || updated.PasswordChangedAt == nil || updated.PasswordChangedAt.Unix() != changedAt.Unix() {
		t.Fatalf("password not stored: %+v", updated)
	}
}

func TestUserRepository_ClaimResetTokenOnce(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepository(newDatabase(t))
	u := mustCreateUser(t, users, "Carol", "carol@example.com")
	now := time.Now()
	if err := users.SetResetToken(ctx, u.ID.Hex(), "digest", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("set reset token: %v", err)
	}

	const claimers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		won  int
		errs []error
	)
	start := make(chan struct{})
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := users.ClaimResetToken(ctx, "digest", now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case !errors.Is(err, domain.ErrNotFound):
				errs = append(errs, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if won != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", won)
	}
}

func TestTourRepository_SecretToursHidden(t *testing.T) {
	ctx := context.Background()
	tours := NewTourRepository(newDatabase(t))

	secret := newTour("The Secret Valley Walk", 500, domain.DifficultyEasy)
	secret.SecretTour = true
	created := mustCreateTour(t, tours, secret)
	if !created.SecretTour || created.Slug != "the-secret-valley-walk" {
		t.Fatalf("creator should get the stored tour back, got %+v", created)
	}
	if created.RatingsAverage != domain.DefaultRatingsAverage || created.DurationWeeks == 0 {
		t.Fatalf("defaults not applied: %+v", created)
	}

	mustCreateTour(t, tours, newTour("The Forest Hiker Tour", 397, domain.DifficultyEasy))

	if _, err := tours.FindByID(ctx, created.ID.Hex()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("secret tour visible by id: %v", err)
	}
	all, err := tours.FindMany(ctx, query.New(url.Values{}).All().Spec())
	if err != nil {
		t.Fatalf("find many: %v", err)
	}
	if len(all) != 1 || all[0].Name != "The Forest Hiker Tour" {
		t.Fatalf("expected only the public tour, got %d", len(all))
	}
	if _, err := tours.UpdateByID(ctx, created.ID.Hex(), bson.M{"price": 1}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("secret tour updatable: %v", err)
	}
}

func TestTourRepository_FindManyAppliesQuery(t *testing.T) {
	ctx := context.Background()
	tours := NewTourRepository(newDatabase(t))
	for i, price := range []float64{300, 100, 200, 400} {
		mustCreateTour(t, tours, newTour(fmt.Sprintf("The Price Tour Number %d", i), price, domain.DifficultyMedium))
	}

	params := url.Values{
		"price[gte]": {"150"},
		"sort":       {"-price"},
		"fields":     {"name,price"},
		"limit":      {"2"},
		"page":       {"1"},
	}
	got, err := tours.FindMany(ctx, query.New(params).All().Spec())
	if err != nil {
		t.Fatalf("find many: %v", err)
	}
	if len(got) != 2 || got[0].Price != 400 || got[1].Price != 300 {
		t.Fatalf("unexpected page: %+v", got)
	}
	if got[0].Summary != "" || got[0].Duration != 0 {
		t.Fatalf("projection not applied: %+v", got[0])
	}

	params.Set("page", "2")
	got, err = tours.FindMany(ctx, query.New(params).All().Spec())
	if err != nil || len(got) != 1 || got[0].Price != 200 {
		t.Fatalf("unexpected second page: %+v %v", got, err)
	}
}

func TestTourRepository_GuidesPopulated(t *testing.T) {
	ctx := context.Background()
	db := newDatabase(t)
	users := NewUserRepository(db)
	tours := NewTourRepository(db)

	guide := mustCreateUser(t, users, "Gina", "gina@example.com")
	tour := newTour("The Guided Mountain Tour", 250, domain.DifficultyDifficult)
	tour.Guides = []primitive.ObjectID{guide.ID}
	created := mustCreateTour(t, tours, tour)

	got, err := tours.FindByID(ctx, created.ID.Hex())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got.GuideProfiles) != 1 || got.GuideProfiles[0].Name != "Gina" {
		t.Fatalf("guides not populated: %+v", got.GuideProfiles)
	}
}

func TestTourRepository_Reports(t *testing.T) {
	ctx := context.Background()
	tours := NewTourRepository(newDatabase(t))

	a := newTour("The Snow Adventurer Tour", 997, domain.DifficultyDifficult)
	a.StartDates = []time.Time{
		time.Date(2021, time.March, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2022, time.March, 10, 0, 0, 0, 0, time.UTC),
	}
	b := newTour("The Sea Explorer Tour", 497, domain.DifficultyMedium)
	b.StartDates = []time.Time{
		time.Date(2021, time.March, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2021, time.July, 1, 0, 0, 0, 0, time.UTC),
	}
	c := newTour("The Hidden Secret Tour", 297, domain.DifficultyMedium)
	c.SecretTour = true
	c.StartDates = []time.Time{time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC)}
	for _, tour := range []*domain.Tour{a, b, c} {
		mustCreateTour(t, tours, tour)
	}

	plan, err := tours.MonthlyPlan(ctx, 2021)
	if err != nil {
		t.Fatalf("monthly plan: %v", err)
	}
	if len(plan) != 2 || plan[0].Month != 3 || plan[0].NumTourStarts != 2 || plan[1].Month != 7 {
		t.Fatalf("unexpected plan: %+v", plan)
	}

	stats, err := tours.Stats(ctx, 4.5)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 2 || stats[0].Difficulty != "MEDIUM" || stats[0].NumTours != 1 || stats[1].MaxPrice != 997 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestTourRepository_Geo(t *testing.T) {
	ctx := context.Background()
	tours := NewTourRepository(newDatabase(t))
	if err := EnsureIndexes(ctx, tours); err != nil {
		t.Fatalf("indexes: %v", err)
	}

	la := newTour("The Los Angeles City Tour", 100, domain.DifficultyEasy)
	la.StartLocation = &domain.GeoPoint{Coordinates: []float64{-118.24, 34.05}}
	ny := newTour("The New York City Tour", 100, domain.DifficultyEasy)
	ny.StartLocation = &domain.GeoPoint{Coordinates: []float64{-74.0, 40.71}}
	mustCreateTour(t, tours, la)
	mustCreateTour(t, tours, ny)

	// 50 miles around downtown LA, in radians.
	within, err := tours.Within(ctx, -118.2, 34.0, 50/3963.2)
	if err != nil {
		t.Fatalf("within: %v", err)
	}
	if len(within) != 1 || within[0].Name != la.Name {
		t.Fatalf("unexpected tours within: %+v", within)
	}

	distances, err := tours.Distances(ctx, -118.24, 34.05, 0.001)
	if err != nil {
		t.Fatalf("distances: %v", err)
	}
	if len(distances) != 2 || distances[0].Name != la.Name || distances[0].Distance > 1 || distances[1].Distance < 3000 {
		t.Fatalf("unexpected distances: %+v", distances)
	}
}

func TestReviewRepository_RatingRollup(t *testing.T) {
	ctx := context.Background()
	db := newDatabase(t)
	users := NewUserRepository(db)
	tours := NewTourRepository(db)
	reviews := NewReviewRepository(db)
	if err := EnsureIndexes(ctx, users, tours, reviews); err != nil {
		t.Fatalf("indexes: %v", err)
	}

	tour := mustCreateTour(t, tours, newTour("The Park Camper Tour", 1497, domain.DifficultyMedium))
	alice := mustCreateUser(t, users, "Alice", "alice@example.com")
	bob := mustCreateUser(t, users, "Bob", "bob@example.com")

	store := service.NewReviewStore(reviews, tours, service.NewRatingService(reviews, tours, zerolog.Nop()), zerolog.Nop())

	first, err := store.Create(ctx, &domain.Review{Review: "Great", Rating: 5, Tour: tour.ID, User: alice.ID})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	read, err := store.FindByID(ctx, first.ID.Hex())
	if err != nil || read.Author == nil || read.Author.Name != "Alice" {
		t.Fatalf("author not populated: %+v %v", read, err)
	}
	if _, err := store.Create(ctx, &domain.Review{Review: "Okay", Rating: 2, Tour: tour.ID, User: bob.ID}); err != nil {
		t.Fatalf("create review: %v", err)
	}

	_, err = store.Create(ctx, &domain.Review{Review: "Again", Rating: 1, Tour: tour.ID, User: alice.ID})
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.ErrConflict {
		t.Fatalf("expected duplicate review conflict, got %v", err)
	}

	_, err = store.Create(ctx, &domain.Review{Review: "Lost", Rating: 3, Tour: primitive.NewObjectID(), User: bob.ID})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unknown tour to be not found, got %v", err)
	}

	assertRatings := func(wantQty int, wantAvg float64) {
		t.Helper()
		got, err := tours.FindByID(ctx, tour.ID.Hex())
		if err != nil {
			t.Fatalf("find tour: %v", err)
		}
		if got.RatingsQuantity != wantQty || got.RatingsAverage != wantAvg {
			t.Fatalf("expected %d/%v, got %d/%v", wantQty, wantAvg, got.RatingsQuantity, got.RatingsAverage)
		}
	}
	assertRatings(2, 3.5)

	if _, err := store.UpdateByID(ctx, first.ID.Hex(), bson.M{"rating": 4}); err != nil {
		t.Fatalf("update review: %v", err)
	}
	assertRatings(2, 3)

	stats, err := reviews.RatingStats(ctx, tour.ID.Hex())
	if err != nil || stats.Quantity != 2 || stats.Average != 3 {
		t.Fatalf("unexpected stats %+v %v", stats, err)
	}

	withReviews, err := tours.FindByID(ctx, tour.ID.Hex(), "reviews")
	if err != nil || len(withReviews.Reviews) != 2 {
		t.Fatalf("reviews not populated: %v", err)
	}

	all, err := store.FindMany(ctx, query.New(url.Values{}).Scope(bson.M{"tour": tour.ID}).All().Spec())
	if err != nil || len(all) != 2 {
		t.Fatalf("scoped reviews: %d %v", len(all), err)
	}
	for _, rv := range all {
		if err := store.DeleteByID(ctx, rv.ID.Hex()); err != nil {
			t.Fatalf("delete review: %v", err)
		}
	}
	assertRatings(0, domain.DefaultRatingsAverage)
}
