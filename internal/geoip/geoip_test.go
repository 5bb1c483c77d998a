package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

func TestLookup(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/203.0.113.9/json/", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ip":"203.0.113.9","city":"Pune","country_name":"India","latitude":18.52,"longitude":73.86}`))
	}))
	defer srv.Close()

	s := NewService(srv.URL, time.Second, time.Hour, logger.NewNop())
	loc, err := s.Lookup(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "India", loc.Country)
	assert.Equal(t, "Pune", loc.City)
	require.NotNil(t, loc.Latitude)
	assert.InDelta(t, 18.52, *loc.Latitude, 1e-9)

	_, err = s.Lookup(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 1, s.CacheSize())
}

func TestLookupSkipsPrivateAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	defer srv.Close()

	s := NewService(srv.URL, time.Second, time.Hour, logger.NewNop())
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.4", "::1", "not-an-ip", ""} {
		loc, err := s.Lookup(context.Background(), ip)
		require.NoError(t, err)
		assert.Equal(t, Location{}, loc)
	}
}

func TestLookupErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/198.51.100.1/json/" {
			_, _ = w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewService(srv.URL, time.Second, time.Hour, logger.NewNop())
	_, err := s.Lookup(context.Background(), "198.51.100.1")
	assert.ErrorContains(t, err, "RateLimited")

	_, err = s.Lookup(context.Background(), "198.51.100.2")
	assert.ErrorContains(t, err, "500")
	assert.Zero(t, s.CacheSize())
}

func TestPruneAndStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewService("http://unused", time.Second, time.Minute, logger.NewNop())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.cache["203.0.113.1"] = cacheEntry{expiresAt: now.Add(-time.Second)}
	s.cache["203.0.113.2"] = cacheEntry{expiresAt: now.Add(time.Second)}

	s.prune()
	assert.Equal(t, 1, s.CacheSize())

	s.StartPeriodicPrune()
	s.Stop()
}
