package level

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func ridge(t *testing.T) *Level {
	t.Helper()
	l, err := New("Ridge Pass", 3, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	heights := [][]uint32{{0, 1, 2, 3}, {5, 8, 13, 21}, {1, 0, 0, 7}}
	for row, values := range heights {
		for col, h := range values {
			if err := l.SetHeight(row, col, h); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := l.SetScale(0.5); err != nil {
		t.Fatal(err)
	}
	return l
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := ridge(t)

	var buf bytes.Buffer
	if err := Encode(&buf, want); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Fatalf("round trip mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	want := ridge(t)
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	var got Level
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Fatal("JSON round trip mismatch")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"missing name": `rows = 1
columns = 1
heights = [[1]]`,
		"short row": `name = "a"
rows = 2
columns = 2
heights = [[1, 1], [1]]`,
		"too many rows": `name = "a"
rows = 1
columns = 1
heights = [[1], [2]]`,
		"zero rows": `name = "a"
rows = 0
columns = 1
heights = []`,
		"oversized": `name = "a"
rows = 4294967296
columns = 4294967296
heights = []`,
		"unknown key": `name = "a"
rows = 1
columns = 1
heights = [[1]]
gods = 3`,
		"negative scale": `name = "a"
rows = 1
columns = 1
scale = -1.0
heights = [[1]]`,
		"not toml": `{{{`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(doc)); !errors.Is(err, ErrMalformed) {
				t.Fatalf("Decode error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestDecodeDefaultsScale(t *testing.T) {
	l, err := Decode(strings.NewReader("name = \"a\"\nrows = 1\ncolumns = 2\nheights = [[4, 5]]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if l.Scale() != DefaultScale {
		t.Fatalf("Scale() = %v", l.Scale())
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()

	small, _ := NewGradient("Small Test Level", 5, 5)
	large, _ := NewGradient("Large Test Level", 15, 15)
	if err := SaveFile(dir, FileName(small.Name()), small); err != nil {
		t.Fatal(err)
	}
	if err := SaveFile(dir, FileName(large.Name()), large); err != nil {
		t.Fatal(err)
	}
	if err := SaveFile(dir, "default.toml", Default()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.toml"), []byte("name = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 3 {
		t.Fatalf("loaded %d levels (%v), want 3", c.Len(), c.Names())
	}
	got, ok := c.Get(DefaultName)
	if !ok || !got.Equal(Default()) {
		t.Fatal("default level did not survive the round trip")
	}
	if got, _ := c.Get("Large Test Level"); got.Rows() != 15 {
		t.Fatal("large level dimensions lost")
	}
}

func TestLoadDirectoryFallsBack(t *testing.T) {
	c, err := LoadDirectory(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 || c.Current().Name() != DefaultName {
		t.Fatalf("missing dir gave %v", c.Names())
	}

	empty := t.TempDir()
	c, err = LoadDirectory(empty)
	if err != nil {
		t.Fatal(err)
	}
	if c.Current().Name() != DefaultName {
		t.Fatal("empty dir should fall back to default")
	}
}

func TestReadDirectoryDoesNotFallBack(t *testing.T) {
	_, err := ReadDirectory(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing dir error = %v, want ErrNotExist", err)
	}

	levels, err := ReadDirectory(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(levels) != 0 {
		t.Fatalf("empty dir gave %d levels", len(levels))
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"Ridge Pass":   "ridge_pass.toml",
		"default":      "default.toml",
		"  ":           "level.toml",
		"Tower-2/East": "tower-2_east.toml",
	}
	for in, want := range tests {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}
