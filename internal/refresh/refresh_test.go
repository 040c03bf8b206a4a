package refresh

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plannercal/internal/ics"
	"plannercal/internal/model"
)

type fakeStore struct {
	mu      sync.Mutex
	sources map[string][]model.Event
	fail    string
}

func (f *fakeStore) ReplaceSource(_ context.Context, sourceID string, events []model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sourceID == f.fail {
		return errors.New("disk full")
	}
	if f.sources == nil {
		f.sources = make(map[string][]model.Event)
	}
	f.sources[sourceID] = events
	return nil
}

const feed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:a@x\r\nDTSTART:20240101T100000Z\r\nDTEND:20240101T110000Z\r\nSUMMARY:A\r\nRRULE:FREQ=DAILY;INTERVAL=2\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/broken.ics") {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(feed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRefreshOnce(t *testing.T) {
	srv := newFeedServer(t)
	store := &fakeStore{}
	r := New(ics.NewFetcher(t.TempDir(), srv.Client()), store, []ics.Source{
		{ID: "team", URL: srv.URL + "/team.ics"},
		{ID: "home", URL: srv.URL + "/home.ics"},
	})
	changed := 0
	r.OnChange = func() { changed++ }

	require.NoError(t, r.RefreshOnce(context.Background()))
	assert.Equal(t, 1, changed)
	require.Len(t, store.sources["team"], 1)
	require.Len(t, store.sources["home"], 1)

	ev := store.sources["team"][0]
	assert.Equal(t, "A", ev.Title)
	assert.Equal(t, `{"type":"daily","interval":2}`, ev.RecurrenceRule)
	assert.NotEqual(t, ev.ID, store.sources["home"][0].ID)
}

func TestRefreshOnce_PartialFailure(t *testing.T) {
	srv := newFeedServer(t)
	store := &fakeStore{fail: "home"}
	r := New(ics.NewFetcher(t.TempDir(), srv.Client()), store, []ics.Source{
		{ID: "team", URL: srv.URL + "/team.ics"},
		{ID: "home", URL: srv.URL + "/home.ics"},
		{ID: "broken", URL: srv.URL + "/broken.ics"},
	})

	err := r.RefreshOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "home: store: disk full")
	assert.Contains(t, err.Error(), "broken")
	assert.Len(t, store.sources["team"], 1)
}

func TestStart_InitialRefreshFinishesBeforeStop(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(feed))
	}))
	t.Cleanup(srv.Close)

	store := &fakeStore{}
	r := New(ics.NewFetcher(t.TempDir(), srv.Client()), store, []ics.Source{
		{ID: "team", URL: srv.URL + "/team.ics"},
	})
	changed := make(chan struct{}, 1)
	r.OnChange = func() { changed <- struct{}{} }

	// Far-off schedule: only the initial run can store anything.
	require.NoError(t, r.Start(context.Background(), "0 0 1 1 *"))

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		close(release)
		t.Fatal("Stop returned while the initial refresh was still fetching")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped
	<-changed

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.sources["team"], 1)
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	r := New(ics.NewFetcher(t.TempDir(), nil), &fakeStore{}, nil)
	assert.Error(t, r.Start(context.Background(), "every tuesday"))
	r.Stop()

	require.NoError(t, r.Start(context.Background(), "*/5 * * * *"))
	r.Stop()
}
