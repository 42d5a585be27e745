package download

import "testing"

func TestParseMediaInfo(t *testing.T) {
	line := `{"title":"Some Song","duration":215.0,"thumbnail":"https://t.example/a.jpg","id":"abc"}`
	mi, ok := parseMediaInfo(line, "https://e.com/v")
	if !ok {
		t.Fatal("parseMediaInfo rejected valid JSON")
	}
	if mi.Title != "Some Song" || mi.DurationSec != 215 || mi.ThumbnailURL != "https://t.example/a.jpg" {
		t.Fatalf("parseMediaInfo = %+v", mi)
	}
}

func TestParseMediaInfoFallbacks(t *testing.T) {
	// no title: the URL stands in
	mi, ok := parseMediaInfo(`{"duration":10}`, "https://e.com/v")
	if !ok {
		t.Fatal("rejected valid JSON")
	}
	if mi.Title != "https://e.com/v" {
		t.Fatalf("Title = %q, want the URL", mi.Title)
	}

	// thumbnail from the thumbnails array
	mi, ok = parseMediaInfo(`{"title":"x","thumbnails":[{"url":"https://t.example/first.jpg"},{"url":"https://t.example/second.jpg"}]}`, "u")
	if !ok {
		t.Fatal("rejected valid JSON")
	}
	if mi.ThumbnailURL != "https://t.example/first.jpg" {
		t.Fatalf("ThumbnailURL = %q", mi.ThumbnailURL)
	}

	if _, ok := parseMediaInfo("not json", "u"); ok {
		t.Fatal("accepted garbage input")
	}
}
