package cargo

import "testing"

func TestGenConfigJSON(t *testing.T) {
	got := GenConfigJSON("http://p:3080/", "https://crates.io/")
	want := `{"dl":"http://p:3080/api/v1/crates","api":"https://crates.io"}`
	if got != want {
		t.Errorf("GenConfigJSON() = %q, want %q", got, want)
	}
}

func TestIsConfigJSONPath(t *testing.T) {
	if !IsConfigJSONPath("config.json") {
		t.Error("expected config.json to match")
	}
	if IsConfigJSONPath("1/a") {
		t.Error("did not expect 1/a to match")
	}
}
