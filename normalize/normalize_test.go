package normalize

import (
	"encoding/json"
	"testing"
)

func TestYear(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *int
	}{
		{name: "month day year", input: "March 3, 2005", want: intPtr(2005)},
		{name: "iso date", input: "2005-03-01", want: intPtr(2005)},
		{name: "month year", input: "March 2005", want: intPtr(2005)},
		{name: "circa", input: "circa 1800s", want: intPtr(1800)},
		{name: "no digits", input: "n.d.", want: nil},
		{name: "too few digits", input: "'99", want: nil},
		{name: "empty", input: "", want: nil},
		{name: "digit runs all shorter than four", input: "printed 1, 984 AD", want: nil},
		{name: "short run before the year", input: "3rd printing 1984", want: intPtr(1984)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Year(tt.input)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("Year(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Fatalf("Year(%q) = %d, want %d", tt.input, *got, *tt.want)
			}
		})
	}
}

func TestAuthors(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  string
	}{
		{name: "single", input: []string{"Jane Austen"}, want: "Jane Austen"},
		{name: "ordered pair", input: []string{"Terry Pratchett", "Neil Gaiman"}, want: "Terry Pratchett, Neil Gaiman"},
		{name: "skips empty", input: []string{"", "Terry Pratchett", "  "}, want: "Terry Pratchett"},
		{name: "none", input: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authors(tt.input); got != tt.want {
				t.Fatalf("Authors(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPublisher(t *testing.T) {
	if got := Publisher([]string{" Penguin Classics ", "Vintage"}); got != "Penguin Classics" {
		t.Fatalf("Publisher = %q, want %q", got, "Penguin Classics")
	}
	if got := Publisher(nil); got != "" {
		t.Fatalf("Publisher(nil) = %q, want empty", got)
	}
}

func TestLanguage(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  string
	}{
		{name: "key path", input: []string{"/languages/eng"}, want: "eng"},
		{name: "bare code", input: []string{"fre"}, want: "fre"},
		{name: "none", input: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Language(tt.input); got != tt.want {
				t.Fatalf("Language(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDescription(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain string", input: `"A classic novel."`, want: "A classic novel."},
		{name: "value object", input: `{"type":"/type/text","value":"A classic novel."}`, want: "A classic novel."},
		{name: "absent", input: ``, want: ""},
		{name: "unexpected shape", input: `[1,2]`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Description(json.RawMessage(tt.input)); got != tt.want {
				t.Fatalf("Description(%s) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCoverURL(t *testing.T) {
	tests := []struct {
		name                 string
		large, medium, small string
		want                 string
	}{
		{name: "prefers large", large: "L", medium: "M", small: "S", want: "L"},
		{name: "falls back to medium", medium: "M", small: "S", want: "M"},
		{name: "falls back to small", small: "S", want: "S"},
		{name: "none", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoverURL(tt.large, tt.medium, tt.small); got != tt.want {
				t.Fatalf("CoverURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func intPtr(v int) *int { return &v }
