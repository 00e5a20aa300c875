package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeStringMap(t *testing.T) {
	input := map[string]string{
		" buyerId ": " buyer-1 ",
		"channel":   "web",
		"note":      " ",
		" ":         "dropped",
		"":          "dropped",
	}
	expected := map[string]string{
		"buyerId": "buyer-1",
		"channel": "web",
		"note":    "",
	}

	if actual := NormalizeStringMap(input); !reflect.DeepEqual(actual, expected) {
		t.Fatalf("expected %#v, got %#v", expected, actual)
	}
}

func TestNormalizeStringMapEmpty(t *testing.T) {
	if NormalizeStringMap(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
	if NormalizeStringMap(map[string]string{" ": "x"}) != nil {
		t.Fatal("expected nil when no entry survives")
	}
}
