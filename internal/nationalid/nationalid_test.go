package nationalid

import "testing"

func TestValid(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"15054682652", true},
		{"12345678950", true},
		{"05054682652", false}, // leading zero
		{"1505468265", false},  // wrong length
		{"1505468265a", false}, // non-digit
		{"15054682653", false}, // bad checksum
		{"12345678959", false}, // bad checksum
		{"", false},
	}

	for _, c := range cases {
		if got := Valid(c.id); got != c.want {
			t.Errorf("Valid(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}
