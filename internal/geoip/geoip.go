// Package geoip resolves the approximate location of client addresses for
// the login session log.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

const (
	DefaultTimeout  = 3 * time.Second
	DefaultCacheTTL = 6 * time.Hour
	pruneInterval   = 30 * time.Minute
)

// Location is the best-effort position of an address. Unknown fields are
// left empty.
type Location struct {
	Country   string
	City      string
	Latitude  *float64
	Longitude *float64
}

// ipapiResponse is the ipapi.co /{ip}/json/ payload.
type ipapiResponse struct {
	IP          string   `json:"ip"`
	City        string   `json:"city"`
	CountryName string   `json:"country_name"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Error       bool     `json:"error"`
	Reason      string   `json:"reason"`
}

type cacheEntry struct {
	location  Location
	expiresAt time.Time
}

// Service looks addresses up against an ipapi-compatible endpoint and keeps
// results in memory.
type Service struct {
	logger  *logger.Logger
	baseURL string
	client  *http.Client
	ttl     time.Duration
	now     func() time.Time

	group      singleflight.Group
	cache      map[string]cacheEntry
	cacheMutex sync.RWMutex

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(baseURL string, timeout, ttl time.Duration, logger *logger.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		logger:  logger.Named("geoip"),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		ttl:     ttl,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Lookup returns the location of ip. Private, loopback and unparsable
// addresses resolve to an empty location without a request.
func (s *Service) Lookup(ctx context.Context, ip string) (Location, error) {
	if !routable(ip) {
		return Location{}, nil
	}

	s.cacheMutex.RLock()
	entry, ok := s.cache[ip]
	s.cacheMutex.RUnlock()
	if ok && s.now().Before(entry.expiresAt) {
		return entry.location, nil
	}

	v, err, _ := s.group.Do(ip, func() (interface{}, error) {
		loc, err := s.fetch(ctx, ip)
		if err != nil {
			return Location{}, err
		}
		s.cacheMutex.Lock()
		s.cache[ip] = cacheEntry{location: loc, expiresAt: s.now().Add(s.ttl)}
		s.cacheMutex.Unlock()
		return loc, nil
	})
	if err != nil {
		return Location{}, err
	}
	return v.(Location), nil
}

func (s *Service) fetch(ctx context.Context, ip string) (Location, error) {
	url := fmt.Sprintf("%s/%s/json/", s.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Location{}, fmt.Errorf("failed to build geoip request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("failed to fetch location: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Location{}, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var payload ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Location{}, fmt.Errorf("failed to decode location: %w", err)
	}
	if payload.Error {
		return Location{}, fmt.Errorf("geoip lookup rejected: %s", payload.Reason)
	}

	return Location{
		Country:   payload.CountryName,
		City:      payload.City,
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
	}, nil
}

// CacheSize returns the number of cached addresses.
func (s *Service) CacheSize() int {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()
	return len(s.cache)
}

func (s *Service) prune() {
	now := s.now()
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	for ip, entry := range s.cache {
		if !now.Before(entry.expiresAt) {
			delete(s.cache, ip)
		}
	}
}

// StartPeriodicPrune drops expired cache entries in the background.
func (s *Service) StartPeriodicPrune() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.prune()
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("GeoIP service stopped")
}

func routable(ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	return !(addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsMulticast())
}
