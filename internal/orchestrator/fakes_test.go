package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"hls-thumbnailer/internal/fetch"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeFetcher serves canned bodies by URL. Unknown URLs fail with a 404.
type fakeFetcher struct {
	mu        sync.Mutex
	resources map[string][]byte
	// failures makes the next n fetches of a URL fail before it is served.
	failures map[string]int
	calls    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{resources: make(map[string][]byte), failures: make(map[string]int)}
}

func (f *fakeFetcher) set(url, body string) {
	f.resources[url] = []byte(body)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)

	if n := f.failures[url]; n > 0 {
		f.failures[url] = n - 1
		return nil, &fetch.FetchError{Kind: fetch.KindNetwork, URL: url, Err: fmt.Errorf("connection reset")}
	}
	data, ok := f.resources[url]
	if !ok {
		return nil, &fetch.FetchError{Kind: fetch.KindStatus, URL: url, Status: http.StatusNotFound}
	}
	return data, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

type fakeProber struct {
	duration float64
	err      error
}

func (p *fakeProber) ProbeDuration(ctx context.Context, data []byte) (float64, error) {
	return p.duration, p.err
}

type extractCall struct {
	data  string
	seek  float64
	width int
}

// fakeExtractor returns "frame:<data>@<seek>" unless fail says otherwise.
type fakeExtractor struct {
	mu    sync.Mutex
	calls []extractCall
	fail  func(call extractCall) error
}

func (e *fakeExtractor) ExtractFrame(ctx context.Context, data []byte, seek float64, width int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	call := extractCall{data: string(data), seek: seek, width: width}
	e.calls = append(e.calls, call)
	if e.fail != nil {
		if err := e.fail(call); err != nil {
			return nil, err
		}
	}
	return []byte(fmt.Sprintf("frame:%s@%.3f", data, seek)), nil
}

func (e *fakeExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) terminalCount() int {
	return len(r.ofType(EventComplete)) + len(r.ofType(EventFailed))
}

const (
	playlistURL = "https://cdn.example.com/vod/index.m3u8"
	seg0URL     = "https://cdn.example.com/vod/seg0.ts"
	seg1URL     = "https://cdn.example.com/vod/seg1.ts"
	seg2URL     = "https://cdn.example.com/vod/seg2.ts"
	fileURL     = "https://cdn.example.com/vod/movie.mp4"
)

const threeSegmentPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:10,
seg0.ts
#EXTINF:10,
seg1.ts
#EXTINF:10,
seg2.ts
#EXT-X-ENDLIST
`

// threeSegmentFetcher serves a 30 second playlist whose segments are "s0".."s2".
func threeSegmentFetcher() *fakeFetcher {
	f := newFakeFetcher()
	f.set(playlistURL, threeSegmentPlaylist)
	f.set(seg0URL, "s0")
	f.set(seg1URL, "s1")
	f.set(seg2URL, "s2")
	return f
}
