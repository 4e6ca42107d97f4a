package rasterpipe

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Skryldev/rasterpipe/errors"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
}

func TestNavigateFrom_StalePosition(t *testing.T) {
	dir := t.TempDir()
	pa, pb := filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")
	writePNG(t, pa)
	writePNG(t, pb)
	a, err := FromFile(pa)
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromFile(pb)
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.WorkerCount = 1
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Stop)
	events, cancel := c.Subscribe(8)
	defer cancel()

	// Workers are not running yet, so both navigations stay pending.
	if _, err := c.Navigate(a); err != nil {
		t.Fatal(err)
	}
	winner, err := c.Navigate(b)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.navigateFrom(a, b)
	if err != nil || got != winner {
		t.Fatalf("while pending: got %+v, %v; want the newer token %+v", got, err, winner)
	}

	c.Start()
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-events:
			done = ev.Kind == EventDisplayReady
		case <-timeout:
			t.Fatal("newer navigation never displayed")
		}
	}

	got, err = c.navigateFrom(a, b)
	if !errors.Is(err, apperrors.ErrSuperseded) || !apperrors.IsCategory(err, apperrors.CategorySuperseded) {
		t.Fatalf("after display: got %+v, %v; want ErrSuperseded", got, err)
	}
	if !got.IsZero() {
		t.Errorf("superseded step returned token %+v", got)
	}
}
