package mongo

import (
	"errors"
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/natours/tours-api/internal/core/domain"
)

func TestCollection_Scoped(t *testing.T) {
	plain := &Collection[domain.Tour]{resource: "tour"}
	filter := bson.M{"price": bson.M{"$lt": 500}}
	if got := plain.scoped(filter); !reflect.DeepEqual(got, filter) {
		t.Fatalf("without base filter the filter must pass through, got %v", got)
	}

	base := bson.M{"secretTour": bson.M{"$ne": true}}
	hidden := &Collection[domain.Tour]{resource: "tour", base: base}

	if got := hidden.scoped(nil); !reflect.DeepEqual(got, base) {
		t.Fatalf("expected base filter alone, got %v", got)
	}
	want := bson.M{"$and": bson.A{base, filter}}
	if got := hidden.scoped(filter); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCollection_MalformedIDIsNotFound(t *testing.T) {
	c := &Collection[domain.Review]{resource: "review"}

	_, err := c.objectID("not-an-object-id")
	var de *domain.Error
	if !errors.As(err, &de) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if de.Message != "No review found with that ID" {
		t.Fatalf("unexpected message %q", de.Message)
	}

	oid := primitive.NewObjectID()
	got, err := c.objectID(oid.Hex())
	if err != nil || got != oid {
		t.Fatalf("expected %v, got %v %v", oid, got, err)
	}
}

func TestObjectIDs_SkipsMalformed(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	got := objectIDs([]string{a.Hex(), "zzz", b.Hex(), ""})
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("unexpected ids %v", got)
	}
}
