package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"blackboard/internal/logging"
)

// RemoteConfig configures a RemoteStore.
type RemoteConfig struct {
	// BaseURL is the rooms API root, e.g. http://host:8080/api.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Timeout time.Duration
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open.
	OpenTimeout time.Duration
	Client      *http.Client
}

// RemoteStore talks to the relay's rooms API.
type RemoteStore struct {
	base    string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewRemoteStore creates a client for the rooms API.
func NewRemoteStore(cfg RemoteConfig) *RemoteStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	log := logging.With().Str("component", "remote-store").Logger()
	threshold := cfg.FailureThreshold
	return &RemoteStore{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		token:  cfg.Token,
		client: client,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "rooms-api",
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
		}),
	}
}

// Get fetches a room.
func (s *RemoteStore) Get(ctx context.Context, roomID string) (*Record, error) {
	body, err := s.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	rec.Normalize()
	return &rec, nil
}

// Put replaces a room.
func (s *RemoteStore) Put(ctx context.Context, rec *Record) error {
	rec.Normalize()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	_, err = s.do(ctx, http.MethodPut, "/rooms/"+url.PathEscape(rec.RoomID), data, http.StatusOK)
	return err
}

// Create asks the relay for a new room with one blank page.
func (s *RemoteStore) Create(ctx context.Context) (*Record, error) {
	body, err := s.do(ctx, http.MethodPost, "/rooms", []byte("{}"), http.StatusCreated)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode created room: %w", err)
	}
	rec.Normalize()
	return &rec, nil
}

func (s *RemoteStore) do(ctx context.Context, method, path string, payload []byte, want int) ([]byte, error) {
	return s.breaker.Execute(func() ([]byte, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, s.base+path, body)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s %s: %w", method, path, err)
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrNotFound
		case resp.StatusCode != want:
			return nil, fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
		}
		return data, nil
	})
}
