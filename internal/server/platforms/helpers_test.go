package platforms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/media"
)

type fakeMedia struct {
	objects map[string]*media.Object
}

func (f *fakeMedia) URL(_ context.Context, ref string) (string, error) {
	if _, ok := f.objects[ref]; !ok {
		return "", errors.New("no such object")
	}
	return "https://cdn.example.com/" + ref, nil
}

func (f *fakeMedia) Fetch(_ context.Context, ref string) (*media.Object, error) {
	o, ok := f.objects[ref]
	if !ok {
		return nil, errors.New("no such object")
	}
	return o, nil
}

// recorder is an httptest server that remembers every request path.
type recorder struct {
	*httptest.Server
	mu    sync.Mutex
	calls []string
}

func newRecorder(t *testing.T, h http.HandlerFunc) *recorder {
	t.Helper()
	rec := &recorder{}
	rec.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.calls = append(rec.calls, r.Method+" "+r.URL.Path)
		rec.mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(rec.Close)
	return rec
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func testOptions(srv *httptest.Server, m media.Source) Options {
	return Options{HTTPClient: srv.Client(), Timeout: 5 * time.Second, Media: m}
}
