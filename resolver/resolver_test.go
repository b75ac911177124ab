package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ellemouton/lnurlw"
	"github.com/stretchr/testify/require"
)

func TestBalancePageURL(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{
			text: "https://host/boltcards?id=1?extra",
			want: "https://host/boltcards/balance?id=1",
			ok:   true,
		},
		{
			text: "lnurlw://card.example.com/boltcards/api/v1/scan/x?p=AB&c=CD",
			want: "https://card.example.com/boltcards/balance?p=AB&c=CD",
			ok:   true,
		},
		{
			text: "https://host?p=1",
			want: "https://host/boltcards/balance?p=1",
			ok:   true,
		},
		{text: "https://host/boltcards", ok: false},
		{text: "https://host/boltcards?", ok: false},
		{text: "lnurlwabc", ok: false},
		{text: "", ok: false},
	}

	for _, test := range tests {
		got, ok := BalancePageURL(test.text, "https")
		require.Equal(t, test.ok, ok, test.text)
		require.Equal(t, test.want, got, test.text)
	}
}

func TestExtractLNURL(t *testing.T) {
	html := []byte(`<html><body>
		<a href="https://other">x</a>
		<a href="lightning:lnurlw1dp68gup69uhkcmmrv9kxsmmnwsarxvpsxqhkcmn4wfkz7amfw35xgunpwafx2ut4v4ehgmn9wsh8xarpva5kueedv4exc">withdraw</a>
		<a href="lightning:lnurlwsecond">second</a>
	</body></html>`)

	got, ok := ExtractLNURL(html)
	require.True(t, ok)
	require.Equal(t, "lnurlw1dp68gup69uhkcmmrv9kxsmmnwsarxvpsxqhkcmn4"+
		"wfkz7amfw35xgunpwafx2ut4v4ehgmn9wsh8xarpva5kueedv4exc", got)

	_, ok = ExtractLNURL([]byte(`<a href="https://nope">`))
	require.False(t, ok)
}

func newBalanceServer(t *testing.T, status int, body string) (*httptest.Server,
	*int32, *atomic.Value) {

	var (
		hits  int32
		query atomic.Value
	)
	srv := httptest.NewTLSServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			if r.URL.Path != "/boltcards/balance" {
				http.NotFound(w, r)
				return
			}
			query.Store(r.URL.RawQuery)
			w.WriteHeader(status)
			w.Write([]byte(body))
		},
	))
	t.Cleanup(srv.Close)

	return srv, &hits, &query
}

func TestResolveBalancePage(t *testing.T) {
	srv, hits, query := newBalanceServer(
		t, http.StatusOK, `<a href="lightning:lnurlwabc">Withdraw</a>`,
	)
	host := strings.TrimPrefix(srv.URL, "https://")

	r := New(Config{BalancePages: true}, lnurlw.NewClient(srv.Client()))
	res, ok := r.Resolve(
		context.Background(), "https://"+host+"/boltcards?id=1?extra",
	)
	require.True(t, ok)
	require.Equal(t, "lnurlwabc", res.LNURL)
	require.Equal(t, ShapeBalancePage, res.Shape)
	require.Equal(t, int32(1), atomic.LoadInt32(hits))
	require.Equal(t, "id=1", query.Load())
}

func TestResolveBalancePageFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("no anchor", func(t *testing.T) {
		srv, _, _ := newBalanceServer(t, http.StatusOK, `<p>empty</p>`)
		host := strings.TrimPrefix(srv.URL, "https://")
		r := New(Config{BalancePages: true}, lnurlw.NewClient(srv.Client()))

		_, ok := r.Resolve(ctx, "lnurlw://"+host+"/scan?p=1")
		require.False(t, ok)
	})

	t.Run("http error", func(t *testing.T) {
		srv, _, _ := newBalanceServer(
			t, http.StatusInternalServerError,
			`<a href="lightning:lnurlwabc">`,
		)
		host := strings.TrimPrefix(srv.URL, "https://")
		r := New(Config{BalancePages: true}, lnurlw.NewClient(srv.Client()))

		_, ok := r.Resolve(ctx, "lnurlw://"+host+"/scan?p=1")
		require.False(t, ok)
	})

	t.Run("transport error", func(t *testing.T) {
		srv, _, _ := newBalanceServer(t, http.StatusOK, "")
		host := strings.TrimPrefix(srv.URL, "https://")
		client := lnurlw.NewClient(srv.Client())
		srv.Close()

		r := New(Config{BalancePages: true}, client)
		_, ok := r.Resolve(ctx, "lnurlw://"+host+"/scan?p=1")
		require.False(t, ok)
	})
}

func TestResolveDirect(t *testing.T) {
	ctx := context.Background()
	r := New(Config{}, lnurlw.NewClient(nil))

	res, ok := r.Resolve(ctx, "lnurlwabc")
	require.True(t, ok)
	require.Equal(t, Resolution{LNURL: "lnurlwabc", Shape: ShapeDirect}, res)

	// Without balance pages a LUD-17 URL is passed on unchanged.
	res, ok = r.Resolve(ctx, "lnurlw://host/scan?p=1")
	require.True(t, ok)
	require.Equal(t, "lnurlw://host/scan?p=1", res.LNURL)

	_, ok = r.Resolve(ctx, "hello world")
	require.False(t, ok)

	_, ok = r.Resolve(ctx, "")
	require.False(t, ok)
}

func TestGuard(t *testing.T) {
	var g Guard

	require.True(t, g.Changed("lnurlwabc"))
	require.False(t, g.Changed("lnurlwabc"))
	require.True(t, g.Changed("lnurlwdef"))
	require.Equal(t, "lnurlwdef", g.Last())

	g.Reset()
	require.Empty(t, g.Last())
	require.True(t, g.Changed("lnurlwdef"))
}
