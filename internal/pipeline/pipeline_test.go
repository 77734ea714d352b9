package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Discover tests ---

func TestDiscover_FiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.webp")
	touch(t, dir, "a.webp")
	touch(t, dir, "photo.png")
	touch(t, dir, "readme.txt")

	files, err := Discover([]string{dir}, []string{".webp"}, false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	want := []string{"a.webp", "b.webp"}
	got := basenames(files)
	if !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDiscover_MultipleExtensions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.webp", "b.png", "c.jpg", "d.jpeg", "e.gif", "f.bmp"} {
		touch(t, dir, name)
	}

	files, err := Discover([]string{dir}, []string{".webp", ".png", ".jpg", ".jpeg", ".gif"}, false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 5 {
		t.Errorf("got %d files, want 5", len(files))
	}
}

func TestDiscover_NonRecursiveByDefault(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "top.webp")
	os.MkdirAll(filepath.Join(dir, "sub"), 0o755)
	touch(t, filepath.Join(dir, "sub"), "nested.webp")

	files, err := Discover([]string{dir}, []string{".webp"}, false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := basenames(files); !sliceEqual(got, []string{"top.webp"}) {
		t.Errorf("got %v, want only top.webp", got)
	}
}

func TestDiscover_RecursiveAndSorted(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "album", "02"), 0o755)
	os.MkdirAll(filepath.Join(dir, "album", "01"), 0o755)
	touch(t, filepath.Join(dir, "album", "02"), "p1.webp")
	touch(t, filepath.Join(dir, "album", "01"), "p2.webp")
	touch(t, filepath.Join(dir, "album", "01"), "p1.webp")

	files, err := Discover([]string{dir}, []string{".webp"}, true)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3", len(files))
	}
	for i := 1; i < len(files); i++ {
		if files[i].Path < files[i-1].Path {
			t.Errorf("not sorted: %q before %q", files[i-1].Path, files[i].Path)
		}
	}
	if want := filepath.Join("album", "01", "p1.webp"); files[0].Rel != want {
		t.Errorf("Rel: got %q, want %q", files[0].Rel, want)
	}
}

func TestDiscover_IgnoresHidden(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "keep.webp")
	touch(t, dir, ".keep.webp.123.tmp")
	touch(t, dir, ".hidden.webp")
	os.MkdirAll(filepath.Join(dir, ".cache"), 0o755)
	touch(t, filepath.Join(dir, ".cache"), "thumb.webp")

	for _, recursive := range []bool{false, true} {
		files, err := Discover([]string{dir}, []string{".webp"}, recursive)
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		if got := basenames(files); !sliceEqual(got, []string{"keep.webp"}) {
			t.Errorf("recursive=%v: got %v, want [keep.webp]", recursive, got)
		}
	}
}

func TestDiscover_CaseInsensitiveExtension(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "PHOTO.WEBP")
	touch(t, dir, "Shot.WebP")

	files, err := Discover([]string{dir}, []string{".webp"}, false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("got %d files, want 2 (case-insensitive ext matching)", len(files))
	}
}

func TestDiscover_RootOrderAndDedup(t *testing.T) {
	base := t.TempDir()
	one := filepath.Join(base, "1")
	two := filepath.Join(base, "2")
	os.MkdirAll(one, 0o755)
	os.MkdirAll(two, 0o755)
	touch(t, one, "z.webp")
	touch(t, two, "a.webp")

	files, err := Discover([]string{one, two, one}, []string{".webp"}, false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := basenames(files); !sliceEqual(got, []string{"z.webp", "a.webp"}) {
		t.Errorf("got %v, want root order [z.webp a.webp] without duplicates", got)
	}
	if files[1].Root != two {
		t.Errorf("Root: got %q, want %q", files[1].Root, two)
	}
}

func TestDiscover_EmptyAndMissing(t *testing.T) {
	dir := t.TempDir()
	for _, recursive := range []bool{false, true} {
		files, err := Discover([]string{dir, filepath.Join(dir, "nope")}, []string{".webp"}, recursive)
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		if len(files) != 0 {
			t.Errorf("got %d files, want 0", len(files))
		}
	}
}

func TestCheckRoots(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "file.webp")

	present, missing, err := CheckRoots([]string{dir, filepath.Join(dir, "gone")})
	if err != nil {
		t.Fatalf("CheckRoots: %v", err)
	}
	if len(present) != 1 || present[0] != dir {
		t.Errorf("present: got %v", present)
	}
	if len(missing) != 1 || filepath.Base(missing[0]) != "gone" {
		t.Errorf("missing: got %v", missing)
	}

	if _, _, err := CheckRoots([]string{filepath.Join(dir, "file.webp")}); err == nil {
		t.Error("expected error for a root that is a file")
	}
}

// --- Output path tests ---

func TestOutputPath(t *testing.T) {
	src := Source{Path: "/photos/1/a/b.webp", Root: "/photos/1", Rel: "a/b.webp"}
	png := Source{Path: "/photos/1/c.PNG", Root: "/photos/1", Rel: "c.PNG"}
	upper := Source{Path: "/photos/1/D.WEBP", Root: "/photos/1", Rel: "D.WEBP"}

	cases := []struct {
		src  Source
		out  string
		want string
	}{
		{src, "", "/photos/1/a/b.webp"},
		{src, "/out", "/out/1/a/b.webp"},
		{png, "", "/photos/1/c.webp"},
		{png, "/out", "/out/1/c.webp"},
		{upper, "", "/photos/1/D.WEBP"},
	}
	for _, tc := range cases {
		if got := OutputPath(tc.src, tc.out, ".webp"); got != tc.want {
			t.Errorf("OutputPath(%s, %q): got %q, want %q", tc.src.Path, tc.out, got, tc.want)
		}
	}
}

func TestCollisionResolver(t *testing.T) {
	cr := NewCollisionResolver()

	if got := cr.Resolve("/in/a.png", "/out/a.webp"); got != "/out/a.webp" {
		t.Errorf("first claim: got %q", got)
	}
	if got := cr.Resolve("/in/a.png", "/out/a.webp"); got != "/out/a.webp" {
		t.Errorf("same owner: got %q", got)
	}
	if got := cr.Resolve("/in/a.jpg", "/out/a.webp"); got != "/out/a - dup1.webp" {
		t.Errorf("collision: got %q", got)
	}
	if got := cr.Resolve("/in/a.gif", "/out/a.webp"); got != "/out/a - dup2.webp" {
		t.Errorf("second collision: got %q", got)
	}
}

func TestCollisionResolver_ClaimedSourceWins(t *testing.T) {
	cr := NewCollisionResolver()
	cr.Claim("/p/a.webp", "/p/a.webp")

	if got := cr.Resolve("/p/a.png", "/p/a.webp"); got != "/p/a - dup1.webp" {
		t.Errorf("png onto existing webp: got %q", got)
	}
	if got := cr.Resolve("/p/a.webp", "/p/a.webp"); got != "/p/a.webp" {
		t.Errorf("owner in place: got %q", got)
	}
}

// --- RunStats tests ---

func TestRunStats(t *testing.T) {
	s := RunStats{Kept: 2, Reduced: 3, Unreached: 1, TotalInputBytes: 1000, TotalOutputBytes: 600}
	if got := s.SpaceSaved(); got != 400 {
		t.Errorf("SpaceSaved: got %d, want 400", got)
	}
	if got := s.Processed(); got != 6 {
		t.Errorf("Processed: got %d, want 6", got)
	}

	s2 := RunStats{TotalInputBytes: 100, TotalOutputBytes: 150}
	if got := s2.SpaceSaved(); got != -50 {
		t.Errorf("SpaceSaved (negative): got %d, want -50", got)
	}
}

// --- IQR tests ---

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}
	cases := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{25, 20},
		{50, 30},
		{75, 40},
		{100, 50},
	}
	for _, tc := range cases {
		if got := percentile(sorted, tc.p); got != tc.want {
			t.Errorf("percentile(%v): got %v, want %v", tc.p, got, tc.want)
		}
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile(nil): got %v, want 0", got)
	}
}

func TestComputeStats_Classify(t *testing.T) {
	st := computeStats([]float64{100, 110, 120, 130, 140, 150, 1000})
	if !st.valid {
		t.Fatal("expected valid bounds")
	}
	if got := st.classify(125); got != "" {
		t.Errorf("classify(125): got %q, want normal", got)
	}
	if got := st.classify(1000); got != "extreme" {
		t.Errorf("classify(1000): got %q, want extreme", got)
	}
	if got := st.classify(st.outlierHi + 1); got != "outlier" {
		t.Errorf("classify(just above fence): got %q, want outlier", got)
	}

	if small := computeStats([]float64{1, 2, 3}); small.valid {
		t.Error("fewer than 4 values should not produce bounds")
	}
}

// --- Helpers ---

func touch(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
}

func basenames(files []Source) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = filepath.Base(f.Path)
	}
	return out
}

func sliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
