package clock

import (
	"math/rand"
	"testing"
)

func randomTags(r *rand.Rand, n int) []Tag {
	tags := make([]Tag, n)
	for i := range tags {
		tags[i] = Tag{Timestamp: r.Intn(5), Value: r.Intn(5)}
	}
	return tags
}

// TestTag_Property_CompareAntisymmetric tests that a<b iff b>a and a=b iff b=a
func TestTag_Property_CompareAntisymmetric(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		tags := randomTags(r, 2)
		a, b := tags[0], tags[1]

		ab, ba := a.Compare(b), b.Compare(a)
		switch ab {
		case Before:
			if ba != After {
				t.Fatalf("%v before %v but reverse gave %v", a, b, ba)
			}
		case After:
			if ba != Before {
				t.Fatalf("%v after %v but reverse gave %v", a, b, ba)
			}
		case Equal:
			if ba != Equal || a != b {
				t.Fatalf("%v equal %v but reverse gave %v", a, b, ba)
			}
		}
	}
}

// TestTag_Property_Transitive tests that the order is transitive
func TestTag_Property_Transitive(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 500; i++ {
		tags := randomTags(r, 3)
		a, b, c := tags[0], tags[1], tags[2]
		if a.Dominates(b) && b.Dominates(c) && !a.Dominates(c) {
			t.Fatalf("order not transitive: %v > %v > %v", a, b, c)
		}
	}
}

// TestTag_Property_MaxIsUpperBound tests that Max is one of its inputs and
// no input dominates it, regardless of input order
func TestTag_Property_MaxIsUpperBound(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		tags := randomTags(r, 1+r.Intn(6))
		max := Max(tags...)

		found := false
		for _, tag := range tags {
			if tag.Dominates(max) {
				t.Fatalf("%v dominates Max=%v of %v", tag, max, tags)
			}
			if tag == max {
				found = true
			}
		}
		if !found {
			t.Fatalf("Max=%v is not one of %v", max, tags)
		}

		r.Shuffle(len(tags), func(i, j int) { tags[i], tags[j] = tags[j], tags[i] })
		if again := Max(tags...); again != max {
			t.Fatalf("Max depends on input order: %v vs %v", max, again)
		}
	}
}
