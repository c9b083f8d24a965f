package research

import (
	"testing"
)

func TestInsertCitationMarkers(t *testing.T) {
	sources := []SearchResult{
		{Title: "First", URL: "https://one.example"},
		{Title: "Second", URL: "https://two.example"},
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "single marker",
			text: "Water boils at 100C [1].",
			want: "Water boils at 100C [First](https://one.example).",
		},
		{
			name: "repeated and multiple markers",
			text: "Per [1] and [2], also [1].",
			want: "Per [First](https://one.example) and [Second](https://two.example), also [First](https://one.example).",
		},
		{
			name: "out of range marker left untouched",
			text: "See [3] for details.",
			want: "See [3] for details.",
		},
		{
			name: "zero marker left untouched",
			text: "Index [0] is invalid.",
			want: "Index [0] is invalid.",
		},
		{
			name: "no markers",
			text: "Plain text without citations.",
			want: "Plain text without citations.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InsertCitationMarkers(tt.text, sources)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInsertCitationMarkersTwoDigit(t *testing.T) {
	sources := make([]SearchResult, 11)
	for i := range sources {
		sources[i] = SearchResult{Title: "t", URL: "u"}
	}
	sources[9] = SearchResult{Title: "Tenth", URL: "https://ten.example"}

	// [10] must resolve as one marker, not [1] followed by "0]".
	got := InsertCitationMarkers("See [10].", sources)
	want := "See [Tenth](https://ten.example)."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInsertCitationMarkersNoSources(t *testing.T) {
	text := "Nothing to link [1]."
	if got := InsertCitationMarkers(text, nil); got != text {
		t.Errorf("got %q, want unchanged text", got)
	}
}

func TestFormatSources(t *testing.T) {
	sources := []SearchResult{
		{Title: "First", URL: "https://one.example"},
		{Title: "Second", URL: "https://two.example"},
	}
	want := "[1] [First](https://one.example)\n[2] [Second](https://two.example)"
	if got := FormatSources(sources); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if got := FormatSources(nil); got != "" {
		t.Errorf("expected empty string for no sources, got %q", got)
	}
}

func TestDedupeSources(t *testing.T) {
	sources := []SearchResult{
		{Title: "A", URL: "https://a.example"},
		{Title: "B", URL: "https://b.example"},
		{Title: "A again", URL: "https://a.example"},
	}

	got := DedupeSources(sources)
	if len(got) != 2 {
		t.Fatalf("expected 2 unique sources, got %d", len(got))
	}
	if got[0].URL != "https://a.example" || got[1].URL != "https://b.example" {
		t.Errorf("first-seen order not preserved: %v", got)
	}
	if got[0].Title != "A" {
		t.Errorf("expected first occurrence to win, got title %q", got[0].Title)
	}
}
