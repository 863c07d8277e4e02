package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeStringMap(t *testing.T) {
	t.Helper()

	t.Run("trims keys and values", func(t *testing.T) {
		input := map[string]string{
			" Title ":     " About ",
			"description": " Learn ",
			"empty":       " ",
			" ":           "ignored",
			"":            "ignore",
		}

		expected := map[string]string{
			"Title":       "About",
			"description": "Learn",
			"empty":       "",
		}

		actual := NormalizeStringMap(input)
		if !reflect.DeepEqual(actual, expected) {
			t.Fatalf("expected %#v got %#v", expected, actual)
		}
	})

	t.Run("returns nil for nil or empty input", func(t *testing.T) {
		if NormalizeStringMap(nil) != nil {
			t.Fatalf("expected nil for nil input")
		}
		if NormalizeStringMap(map[string]string{}) != nil {
			t.Fatalf("expected nil for empty map")
		}
	})
}

func TestNormalizeList(t *testing.T) {
	t.Run("splits, lowercases, and dedupes", func(t *testing.T) {
		input := []string{"Pending, Confirmed", "confirmed", " SHIPPED "}
		expected := []string{"pending", "confirmed", "shipped"}

		actual := NormalizeList(input)
		if !reflect.DeepEqual(actual, expected) {
			t.Fatalf("expected %#v got %#v", expected, actual)
		}
	})

	t.Run("returns nil when nothing survives", func(t *testing.T) {
		if NormalizeList(nil) != nil {
			t.Fatalf("expected nil for nil input")
		}
		if NormalizeList([]string{" ", ","}) != nil {
			t.Fatalf("expected nil for blank entries")
		}
	})
}
