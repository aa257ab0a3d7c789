package classify

import (
	"strings"
	"testing"
)

func TestGroupID_Deterministic(t *testing.T) {
	a := GroupID("exception-type", "TimeoutException")
	b := GroupID("exception-type", "TimeoutException")
	if a != b {
		t.Errorf("same input produced different ids: %q vs %q", a, b)
	}
}

func TestGroupID_DistinctInputs(t *testing.T) {
	ids := map[string]string{
		"exception-type/TimeoutException": GroupID("exception-type", "TimeoutException"),
		"exception-type/NullReference":    GroupID("exception-type", "NullReference"),
		"message-type/TimeoutException":   GroupID("message-type", "TimeoutException"),
	}
	seen := make(map[string]string)
	for input, id := range ids {
		if prev, ok := seen[id]; ok {
			t.Errorf("collision between %q and %q: %q", input, prev, id)
		}
		seen[id] = input
	}
}

func TestGroupID_SafeCharacters(t *testing.T) {
	id := GroupID("my classifier!", "some/value with spaces")
	for _, r := range id {
		valid := r >= 'a' && r <= 'z' ||
			r >= 'A' && r <= 'Z' ||
			r >= '0' && r <= '9' ||
			r == '.' || r == '_'
		if !valid {
			t.Errorf("id %q contains invalid character %q", id, r)
		}
	}
	if !strings.HasPrefix(id, "my_classifier_.") {
		t.Errorf("expected sanitized prefix, got %q", id)
	}
}

func TestSanitizeID(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"exception-type", "exception_type"},
		{"already.safe_123", "already.safe_123"},
		{"spaces and/slashes", "spaces_and_slashes"},
		{"", ""},
	}
	for _, c := range cases {
		if got := SanitizeID(c.in); got != c.want {
			t.Errorf("SanitizeID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
