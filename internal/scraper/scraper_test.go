package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pfrederiksen/notice-watch/internal/notice"
)

const portletParam = "_kr_ac_hanyang_bbs_web_portlet_BbsPortlet_"

func listItem(id, title string) string {
	return fmt.Sprintf(`<div class="hyu-list-body-item"><div class="hyu-list-body-item-col">`+
		`<a onclick="_kr_ac_hanyang_bbs_web_portlet_BbsPortlet_viewMessage(%s, 'view_message');">%s</a>`+
		`<p><span class="date">2026. 3. 2</span></p></div></div>`, id, title)
}

// boardServer serves list pages keyed by the page cursor.
func boardServer(t *testing.T, pages map[string]string, status int) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var requested []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "notice-watch") {
			t.Errorf("User-Agent = %q, should contain 'notice-watch'", ua)
		}
		if lang := r.Header.Get("Accept-Language"); lang != AcceptLanguage {
			t.Errorf("Accept-Language = %q, want %q", lang, AcceptLanguage)
		}
		if action := r.URL.Query().Get(portletParam + "action"); action != "view" {
			t.Errorf("action = %q, want view", action)
		}

		cur := r.URL.Query().Get(portletParam + "cur")
		mu.Lock()
		requested = append(requested, cur)
		mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprint(w, pages[cur])
	}))
	t.Cleanup(server.Close)
	return server, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), requested...)
	}
}

func TestFetchPage(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		statusCode int
		wantError  bool
	}{
		{
			name:       "successful fetch",
			body:       "<html><body>" + listItem("1", "공지") + "</body></html>",
			statusCode: http.StatusOK,
		},
		{
			name:       "not found",
			statusCode: http.StatusNotFound,
			wantError:  true,
		},
		{
			name:       "server error",
			statusCode: http.StatusBadGateway,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := boardServer(t, map[string]string{"1": tt.body}, tt.statusCode)
			s := New(notice.NewBoard(server.URL + "/nt1"))

			markup, err := s.FetchPage(context.Background(), 1)

			if tt.wantError {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) {
					t.Fatalf("FetchPage() error = %v, want *StatusError", err)
				}
				if statusErr.StatusCode != tt.statusCode {
					t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, tt.statusCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchPage() unexpected error: %v", err)
			}
			if !strings.Contains(markup, "공지") {
				t.Errorf("markup missing body text: %q", markup)
			}
		})
	}
}

func TestFetchPage_DecodesLegacyCharset(t *testing.T) {
	// "공지" in EUC-KR.
	eucKR := []byte{0xb0, 0xf8, 0xc1, 0xf6}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=euc-kr")
		w.Write(append([]byte("<p>"), append(eucKR, []byte("</p>")...)...))
	}))
	defer server.Close()

	s := New(notice.NewBoard(server.URL))
	markup, err := s.FetchPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchPage() error: %v", err)
	}
	if !strings.Contains(markup, "공지") {
		t.Errorf("markup = %q, want decoded Korean text", markup)
	}
}

func TestFetchPage_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	s := New(notice.NewBoard(server.URL), WithTimeout(50*time.Millisecond))
	if _, err := s.FetchPage(context.Background(), 1); err == nil {
		t.Fatal("FetchPage() expected timeout error, got nil")
	}
}

func TestFetchNotices_MergesPagesInOrder(t *testing.T) {
	pages := map[string]string{
		"1": listItem("30", "셋") + listItem("29", "둘"),
		// Pagination drift: 29 slid onto page 2 between requests.
		"2": listItem("29", "둘") + listItem("28", "하나"),
		"3": listItem("27", "영"),
	}
	server, requested := boardServer(t, pages, http.StatusOK)

	var observed []int
	s := New(notice.NewBoard(server.URL), WithPageObserver(func(page, _ int) {
		observed = append(observed, page)
	}))

	notices, err := s.FetchNotices(context.Background(), 3)
	if err != nil {
		t.Fatalf("FetchNotices() error: %v", err)
	}

	got := notice.IDs(notices)
	want := []string{"30", "29", "28", "27"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ids = %v, want %v", got, want)
	}
	if got := requested(); strings.Join(got, ",") != "1,2,3" {
		t.Errorf("requested pages = %v, want [1 2 3]", got)
	}
	if len(observed) != 3 {
		t.Errorf("observer called %d times, want 3", len(observed))
	}
}

func TestFetchNotices_PageFailureAborts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get(portletParam+"cur") == "2" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, listItem("1", "공지"))
	}))
	defer server.Close()

	s := New(notice.NewBoard(server.URL))
	notices, err := s.FetchNotices(context.Background(), 3)
	if err == nil {
		t.Fatal("FetchNotices() expected error, got nil")
	}
	if notices != nil {
		t.Errorf("notices = %v, want nil on failure", notices)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server saw %d requests, want 2 (no requests after failure)", n)
	}
}

func TestFetchNotices_AtLeastOnePage(t *testing.T) {
	server, requested := boardServer(t, map[string]string{"1": listItem("1", "공지")}, http.StatusOK)

	s := New(notice.NewBoard(server.URL))
	if _, err := s.FetchNotices(context.Background(), 0); err != nil {
		t.Fatalf("FetchNotices() error: %v", err)
	}
	if got := requested(); len(got) != 1 {
		t.Errorf("requested %d pages, want 1", len(got))
	}
}

func TestNew(t *testing.T) {
	s := New(notice.NewBoard(""))

	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.client == nil {
		t.Fatal("scraper client is nil")
	}
	if s.client.Timeout != Timeout {
		t.Errorf("client timeout = %v, want %v", s.client.Timeout, Timeout)
	}
	if s.userAgent != UserAgent {
		t.Errorf("userAgent = %q, want %q", s.userAgent, UserAgent)
	}
	if s.board.BaseURL != notice.DefaultBaseURL {
		t.Errorf("board = %q, want default", s.board.BaseURL)
	}
}

func TestNew_Options(t *testing.T) {
	client := &http.Client{}
	s := New(notice.NewBoard(""), WithUserAgent("custom/2.0"), WithHTTPClient(client))

	if s.userAgent != "custom/2.0" {
		t.Errorf("userAgent = %q", s.userAgent)
	}
	if s.client != client {
		t.Error("WithHTTPClient did not replace client")
	}
}
