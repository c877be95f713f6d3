package stage

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/pithecene-io/imgbatch/iox"
	"github.com/pithecene-io/imgbatch/metrics"
	"github.com/pithecene-io/imgbatch/types"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 11), B: 128, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestExecutor(t *testing.T, cfg ExecutorConfig) *Executor {
	t.Helper()
	if cfg.Pool == nil {
		cfg.Pool = NewPool(2)
		t.Cleanup(cfg.Pool.Close)
	}
	return NewExecutor(cfg)
}

func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDecode_PNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, path, 12, 7)

	e := newTestExecutor(t, ExecutorConfig{})
	src, err := e.Decode(t.Context(), types.NewPipelineTask(1, path))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if src.Width != 12 || src.Height != 7 {
		t.Errorf("size = %dx%d, want 12x7", src.Width, src.Height)
	}
	if src.Format != "png" {
		t.Errorf("Format = %q, want png", src.Format)
	}
	if src.Path != path {
		t.Errorf("Path = %q, want %q", src.Path, path)
	}
}

func TestDecode_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jpg")
	if err := os.WriteFile(path, []byte("definitely not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestExecutor(t, ExecutorConfig{})
	_, err := e.Decode(t.Context(), types.NewPipelineTask(1, path))

	var de *types.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %T %v, want *DecodeError", err, err)
	}
	if de.Path != path {
		t.Errorf("DecodeError.Path = %q, want %q", de.Path, path)
	}
	if !errors.Is(err, types.ErrDecode) {
		t.Error("errors.Is(err, ErrDecode) = false")
	}
}

func TestDecode_MissingFile(t *testing.T) {
	e := newTestExecutor(t, ExecutorConfig{})
	_, err := e.Decode(t.Context(), types.NewPipelineTask(1, filepath.Join(t.TempDir(), "gone.png")))
	if !errors.Is(err, types.ErrDecode) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
}

func TestTransform_Dimensions(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		destW, destH int
	}{
		{"upscale", 10, 10, 20, 20},
		{"identity", 9, 5, 9, 5},
		{"downscale", 100, 50, 33, 16},
		{"zero width", 10, 10, 0, 10},
		{"zero both", 10, 10, 0, 0},
	}

	e := newTestExecutor(t, ExecutorConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &types.SourceImage{Path: "s.png", Pixels: gradient(tt.srcW, tt.srcH), Width: tt.srcW, Height: tt.srcH}
			spec := types.ResizeSpec{
				SourceWidth: tt.srcW, SourceHeight: tt.srcH,
				DestWidth: tt.destW, DestHeight: tt.destH,
				DestPath: "out/s.jpg",
			}
			out, err := e.Transform(t.Context(), types.NewPipelineTask(1, "s.png"), src, spec)
			if err != nil {
				t.Fatalf("Transform: %v", err)
			}
			w, h := out.Bounds()
			if w != tt.destW || h != tt.destH {
				t.Errorf("output = %dx%d, want %dx%d", w, h, tt.destW, tt.destH)
			}
			if out.DestPath != "out/s.jpg" {
				t.Errorf("DestPath = %q", out.DestPath)
			}
		})
	}
}

func TestTransform_DoesNotMutateSource(t *testing.T) {
	pixels := gradient(16, 16)
	before := bytes.Clone(pixels.Pix)

	e := newTestExecutor(t, ExecutorConfig{})
	src := &types.SourceImage{Path: "s.png", Pixels: pixels, Width: 16, Height: 16}
	spec := types.ResizeSpec{SourceWidth: 16, SourceHeight: 16, DestWidth: 40, DestHeight: 8}
	if _, err := e.Transform(t.Context(), types.NewPipelineTask(1, "s.png"), src, spec); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !bytes.Equal(before, pixels.Pix) {
		t.Fatal("source pixels changed during transform")
	}
}

func TestTransform_NegativeDimensions(t *testing.T) {
	e := newTestExecutor(t, ExecutorConfig{})
	src := &types.SourceImage{Path: "s.png", Pixels: gradient(4, 4), Width: 4, Height: 4}
	_, err := e.Transform(t.Context(), types.NewPipelineTask(1, "s.png"), src, types.ResizeSpec{DestWidth: -1, DestHeight: 4})

	var te *types.TransformError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransformError", err)
	}
}

func TestPersist_WritesJPEG(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "a.jpg")
	m := metrics.NewCollector("batch", "")

	e := newTestExecutor(t, ExecutorConfig{Metrics: m, Quality: 75})
	img := &types.ProcessedImage{Pixels: image.NewRGBA(image.Rect(0, 0, 20, 20)), DestPath: dest}
	if err := e.Persist(t.Context(), types.NewPipelineTask(1, "a.png"), img, types.ResizeSpec{DestWidth: 20, DestHeight: 20, DestPath: dest}); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer iox.DiscardClose(f)
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width != 20 || cfg.Height != 20 {
		t.Errorf("output = %dx%d, want 20x20", cfg.Width, cfg.Height)
	}

	if names := leftovers(t, dir); len(names) != 1 || names[0] != "a.jpg" {
		t.Errorf("dest dir = %v, want only a.jpg", names)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Snapshot().BytesWritten; got != info.Size() {
		t.Errorf("BytesWritten = %d, want %d", got, info.Size())
	}
}

func TestPersist_ZeroAreaLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "z.jpg")

	e := newTestExecutor(t, ExecutorConfig{})
	img := &types.ProcessedImage{Pixels: image.NewRGBA(image.Rect(0, 0, 0, 5)), DestPath: dest}
	err := e.Persist(t.Context(), types.NewPipelineTask(1, "z.png"), img, types.ResizeSpec{DestHeight: 5, DestPath: dest})

	if !errors.Is(err, types.ErrEncode) {
		t.Fatalf("err = %v, want EncodeError", err)
	}
	if names := leftovers(t, dir); len(names) != 0 {
		t.Errorf("dest dir should be empty, got %v", names)
	}
}

func TestPersist_MissingDirectory(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "missing", "a.jpg")

	e := newTestExecutor(t, ExecutorConfig{})
	img := &types.ProcessedImage{Pixels: image.NewRGBA(image.Rect(0, 0, 4, 4)), DestPath: dest}
	err := e.Persist(t.Context(), types.NewPipelineTask(1, "a.png"), img, types.ResizeSpec{DestWidth: 4, DestHeight: 4, DestPath: dest})

	var ioe *types.IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("err = %v, want *IOError", err)
	}
	if ioe.Kind != types.IONotFound {
		t.Errorf("Kind = %q, want %q", ioe.Kind, types.IONotFound)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("partial destination file exists")
	}
}

func TestPersist_RenameFailureRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "a.jpg")
	// A non-empty directory at dest makes the final rename fail after the
	// temp file has been encoded and synced.
	if err := os.Mkdir(dest, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "keep"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := metrics.NewCollector("batch", "")
	e := newTestExecutor(t, ExecutorConfig{Metrics: m})
	img := &types.ProcessedImage{Pixels: image.NewRGBA(image.Rect(0, 0, 6, 6)), DestPath: dest}
	err := e.Persist(t.Context(), types.NewPipelineTask(1, "a.png"), img, types.ResizeSpec{DestWidth: 6, DestHeight: 6, DestPath: dest})

	var ioe *types.IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("err = %v, want *IOError", err)
	}
	if names := leftovers(t, dir); !slices.Equal(names, []string{"a.jpg"}) {
		t.Errorf("dir entries = %v, want only [a.jpg]", names)
	}
	if info, statErr := os.Stat(dest); statErr != nil || !info.IsDir() {
		t.Errorf("existing destination was replaced: %v", statErr)
	}
	if got := m.Snapshot().BytesWritten; got != 0 {
		t.Errorf("BytesWritten = %d, want 0", got)
	}
}

func TestExecutor_StagePanicBecomesTypedError(t *testing.T) {
	tests := []struct {
		stage types.Stage
		want  error
	}{
		{types.StageDecode, types.ErrDecode},
		{types.StageTransform, types.ErrTransform},
		{types.StagePersist, types.ErrEncode},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			var (
				mu       sync.Mutex
				finishes []types.StageEvent
			)
			pool := NewPool(1)
			t.Cleanup(pool.Close)
			e := newTestExecutor(t, ExecutorConfig{
				Pool: pool,
				Observer: func(ev types.StageEvent) {
					if ev.Phase == types.PhaseFinish {
						mu.Lock()
						finishes = append(finishes, ev)
						mu.Unlock()
					}
				},
			})

			task := types.NewPipelineTask(3, "boom.png")
			err := e.run(task, tt.stage, "boom.png", func() error {
				panic("codec exploded")
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if len(finishes) != 1 || finishes[0].Err == nil {
				t.Errorf("finish events = %+v, want one failed finish", finishes)
			}

			// The single worker must survive to serve the next task.
			srcPath := filepath.Join(t.TempDir(), "ok.png")
			writePNG(t, srcPath, 2, 2)
			if _, err := e.Decode(t.Context(), types.NewPipelineTask(4, srcPath)); err != nil {
				t.Errorf("Decode after panic: %v", err)
			}
		})
	}
}

func TestPersist_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(dest, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestExecutor(t, ExecutorConfig{})
	img := &types.ProcessedImage{Pixels: image.NewRGBA(image.Rect(0, 0, 3, 3)), DestPath: dest}
	if err := e.Persist(t.Context(), types.NewPipelineTask(1, "a.png"), img, types.ResizeSpec{DestWidth: 3, DestHeight: 3, DestPath: dest}); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("existing file not replaced with JPEG: %v", err)
	}
}

func TestExecutor_StageEvents(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "a.png")
	writePNG(t, srcPath, 8, 8)
	dest := filepath.Join(dir, "a.jpg")

	var (
		mu     sync.Mutex
		events []types.StageEvent
	)
	m := metrics.NewCollector("batch", "")
	e := newTestExecutor(t, ExecutorConfig{
		Metrics: m,
		Observer: func(ev types.StageEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})

	task := types.NewPipelineTask(7, srcPath)
	spec := types.ResizeSpec{SourceWidth: 8, SourceHeight: 8, DestWidth: 4, DestHeight: 4, DestPath: dest}
	src, err := e.Decode(t.Context(), task)
	if err != nil {
		t.Fatal(err)
	}
	img, err := e.Transform(t.Context(), task, src, spec)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Persist(t.Context(), task, img, spec); err != nil {
		t.Fatal(err)
	}

	if len(events) != 6 {
		t.Fatalf("got %d events, want 6", len(events))
	}
	for i, stage := range types.Stages {
		start, finish := events[2*i], events[2*i+1]
		if start.Stage != stage || start.Phase != types.PhaseStart {
			t.Errorf("event %d = %s/%s, want %s/start", 2*i, start.Stage, start.Phase, stage)
		}
		if finish.Stage != stage || finish.Phase != types.PhaseFinish {
			t.Errorf("event %d = %s/%s, want %s/finish", 2*i+1, finish.Stage, finish.Phase, stage)
		}
		if start.Seq != 7 || finish.Seq != 7 {
			t.Errorf("stage %s seq = %d/%d, want 7", stage, start.Seq, finish.Seq)
		}
		if start.Worker < 1 || start.Worker != finish.Worker {
			t.Errorf("stage %s workers = %d/%d, want same id >= 1", stage, start.Worker, finish.Worker)
		}
		if _, ok := task.Durations[stage]; !ok {
			t.Errorf("task has no duration for %s", stage)
		}
	}

	snap := m.Snapshot()
	for _, stage := range types.Stages {
		if snap.Stages[string(stage)].Count != 1 {
			t.Errorf("metrics %s Count = %d, want 1", stage, snap.Stages[string(stage)].Count)
		}
	}
}

func TestExecutor_ClosedPool(t *testing.T) {
	p := NewPool(1)
	p.Close()
	e := NewExecutor(ExecutorConfig{Pool: p})

	_, err := e.Decode(t.Context(), types.NewPipelineTask(1, "a.png"))
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("err = %v, want ErrPoolClosed", err)
	}
}
