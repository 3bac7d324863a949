package frames

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
	"github.com/HaozheZhao/cua-annotation-tool/internal/timeline"
)

const defaultMaxSources = 8

// Request identifies one step's frame.
type Request struct {
	TaskID    int
	Step      int
	VideoPath string
	Offset    timeline.Offset
}

// Stats reports cache activity.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Sources   int    `json:"sources"`
}

type cacheKey struct {
	task int
	step int
}

// generation counts invalidations. A load only caches its frame when neither
// counter moved while it ran.
type generation struct {
	task uint64
	step uint64
}

type cacheEntry struct {
	key    cacheKey
	path   string
	offset timeline.Offset
	img    *image.RGBA
}

// Extractor serves step frames through a bounded LRU cache.
type Extractor struct {
	opener     Opener
	capacity   int
	maxSources int
	logger     *slog.Logger

	flights singleflight.Group

	mu              sync.Mutex
	order           *list.List
	entries         map[cacheKey]*list.Element
	generations     map[cacheKey]uint64
	taskGenerations map[int]uint64
	stats           Stats

	sourceMu    sync.Mutex
	sources     map[string]Source
	sourceOrder []string
}

// NewExtractor constructs an Extractor holding at most capacity frames.
func NewExtractor(opener Opener, capacity int, logger *slog.Logger) *Extractor {
	if capacity <= 0 {
		capacity = 1
	}
	return &Extractor{
		opener:          opener,
		capacity:        capacity,
		maxSources:      defaultMaxSources,
		logger:          logging.NewComponentLogger(logger, "frames"),
		order:           list.New(),
		entries:         make(map[cacheKey]*list.Element),
		generations:     make(map[cacheKey]uint64),
		taskGenerations: make(map[int]uint64),
		sources:         make(map[string]Source),
	}
}

// Extract returns the frame for req. The returned image is a private copy.
// Failures are *services.StepError values naming the task, step, and offset.
func (e *Extractor) Extract(ctx context.Context, req Request) (image.Image, error) {
	key := cacheKey{task: req.TaskID, step: req.Step}
	img, gen, ok := e.lookup(key, req)
	if ok {
		return img, nil
	}
	if req.VideoPath == "" {
		return nil, e.stepError(req, services.ErrNotFound, errors.New("task has no recording"))
	}

	// Callers only share a decode when they agree on the recording, the
	// offset, and the invalidation state.
	flight := fmt.Sprintf("frame:%d/%d/%s/%g/%d.%d",
		req.TaskID, req.Step, req.VideoPath, req.Offset.Seconds(), gen.task, gen.step)
	ch := e.flights.DoChan(flight, func() (any, error) {
		return e.load(context.WithoutCancel(ctx), key, gen, req)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneRGBA(res.Val.(*image.RGBA)), nil
	}
}

// Info returns the probed properties of the video at path.
func (e *Extractor) Info(ctx context.Context, path string) (VideoInfo, error) {
	src, err := e.source(ctx, path)
	if err != nil {
		return VideoInfo{}, err
	}
	return src.Info(), nil
}

// lookup returns a cached frame, or on a miss the generation a new load
// must still observe when it finishes.
func (e *Extractor) lookup(key cacheKey, req Request) (image.Image, generation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	elem, ok := e.entries[key]
	if ok {
		entry := elem.Value.(*cacheEntry)
		if entry.path == req.VideoPath && entry.offset == req.Offset {
			e.order.MoveToFront(elem)
			e.stats.Hits++
			return cloneRGBA(entry.img), generation{}, true
		}
		e.removeLocked(elem)
	}
	e.stats.Misses++
	return nil, e.generationLocked(key), false
}

func (e *Extractor) generationLocked(key cacheKey) generation {
	return generation{task: e.taskGenerations[key.task], step: e.generations[key]}
}

func (e *Extractor) load(ctx context.Context, key cacheKey, gen generation, req Request) (*image.RGBA, error) {
	src, err := e.source(ctx, req.VideoPath)
	if err != nil {
		return nil, e.stepError(req, nil, err)
	}
	decoded, err := src.Seek(ctx, req.Offset)
	if err != nil {
		return nil, e.stepError(req, nil, err)
	}
	img := toRGBA(decoded)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generationLocked(key) == gen {
		e.storeLocked(&cacheEntry{key: key, path: req.VideoPath, offset: req.Offset, img: img})
	}
	e.logger.Debug("frame extracted",
		logging.Int(logging.FieldTaskID, req.TaskID),
		logging.Int(logging.FieldStep, req.Step),
		logging.Offset(req.Offset.Seconds()),
		logging.String("cache", "miss"),
	)
	return img, nil
}

func (e *Extractor) storeLocked(entry *cacheEntry) {
	if elem, ok := e.entries[entry.key]; ok {
		e.removeLocked(elem)
	}
	e.entries[entry.key] = e.order.PushFront(entry)
	for e.order.Len() > e.capacity {
		oldest := e.order.Back()
		if oldest == nil {
			break
		}
		e.removeLocked(oldest)
		e.stats.Evictions++
	}
}

func (e *Extractor) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(e.entries, entry.key)
	e.order.Remove(elem)
}

// Invalidate drops the cached frame for (task, step) so the next Extract
// decodes it again. In-flight extractions for the key are not cached.
func (e *Extractor) Invalidate(taskID, step int) {
	key := cacheKey{task: taskID, step: step}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generations[key]++
	if elem, ok := e.entries[key]; ok {
		e.removeLocked(elem)
	}
}

// InvalidateTask drops every cached frame for taskID. Extractions of the
// task that are still running are not cached.
func (e *Extractor) InvalidateTask(taskID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.taskGenerations[taskID]++
	for key, elem := range e.entries {
		if key.task == taskID {
			e.removeLocked(elem)
		}
	}
}

// Stats returns a snapshot of cache counters.
func (e *Extractor) Stats() Stats {
	e.mu.Lock()
	stats := e.stats
	stats.Entries = e.order.Len()
	stats.Capacity = e.capacity
	e.mu.Unlock()

	e.sourceMu.Lock()
	stats.Sources = len(e.sources)
	e.sourceMu.Unlock()
	return stats
}

// Close releases every open source.
func (e *Extractor) Close() error {
	e.sourceMu.Lock()
	defer e.sourceMu.Unlock()
	var errs []error
	for _, path := range e.sourceOrder {
		if err := e.sources[path].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	e.sources = make(map[string]Source)
	e.sourceOrder = nil
	return errors.Join(errs...)
}

// source returns the open Source for path, opening it on first use. Sources
// are reused across sequential extractions for the same recording.
func (e *Extractor) source(ctx context.Context, path string) (Source, error) {
	e.sourceMu.Lock()
	if src, ok := e.sources[path]; ok {
		e.sourceMu.Unlock()
		return src, nil
	}
	e.sourceMu.Unlock()

	v, err, _ := e.flights.Do("open:"+path, func() (any, error) {
		e.sourceMu.Lock()
		if src, ok := e.sources[path]; ok {
			e.sourceMu.Unlock()
			return src, nil
		}
		e.sourceMu.Unlock()

		src, err := e.opener.Open(ctx, path)
		if err != nil {
			return nil, err
		}

		e.sourceMu.Lock()
		defer e.sourceMu.Unlock()
		e.sources[path] = src
		e.sourceOrder = append(e.sourceOrder, path)
		for len(e.sourceOrder) > e.maxSources {
			oldest := e.sourceOrder[0]
			e.sourceOrder = e.sourceOrder[1:]
			if old, ok := e.sources[oldest]; ok {
				_ = old.Close()
				delete(e.sources, oldest)
			}
		}
		return src, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Source), nil
}

func (e *Extractor) stepError(req Request, marker error, err error) error {
	var stepErr *services.StepError
	if errors.As(err, &stepErr) {
		return err
	}
	if marker == nil {
		switch {
		case errors.Is(err, services.ErrSeekOutOfRange):
			marker = services.ErrSeekOutOfRange
		case errors.Is(err, services.ErrNotFound):
			marker = services.ErrNotFound
		default:
			marker = services.ErrDecodeFailure
		}
	}
	return &services.StepError{
		Marker:    marker,
		TaskID:    req.TaskID,
		Step:      req.Step,
		Offset:    req.Offset.Seconds(),
		HasOffset: true,
		Op:        "extract frame",
		Err:       err,
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return cloneRGBA(rgba)
	}
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)
	return out
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	out := &image.RGBA{
		Pix:    make([]uint8, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(out.Pix, src.Pix)
	return out
}
