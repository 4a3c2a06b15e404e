package ansi

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"hilite red", "%ch%crhot%cn", "\033[1m\033[31mhot\033[0m"},
		{"foreground", "%cggreen", "\033[32mgreen\033[0m"},
		{"background", "%cWwhite bg", "\033[47mwhite bg\033[0m"},
		{"flash and inverse", "%cf!%ci?", "\033[5m!\033[7m?\033[0m"},
		{"underline", "%culine", "\033[4mline\033[0m"},
		{"unknown code kept", "100%cpu", "100%cpu"},
		{"lone percent", "50% done", "50% done"},
		{"trailing marker", "odd%c", "odd%c"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseNoDoubleReset(t *testing.T) {
	got := Parse("%crred%cn")
	if strings.Count(got, Normal) != 1 {
		t.Errorf("expected a single reset, got %q", got)
	}
}

func TestStrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"codes removed", "%ch%crhot%cn", "hot"},
		{"background removed", "a%cGb", "ab"},
		{"unknown kept", "100%cpu", "100%cpu"},
		{"mixed", "%cya %cq b%cn", "a %cq b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Strip(tt.input)
			if got != tt.want {
				t.Errorf("Strip(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLength(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"abc", 3},
		{"%chabc%cn", 3},
		{"%crré%cn", 2},
		{"100%cpu", 7},
	}
	for _, tt := range tests {
		if got := Length(tt.input); got != tt.want {
			t.Errorf("Length(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
