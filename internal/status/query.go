package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"arkmanager/internal/domain"

	"github.com/woozymasta/a2s/pkg/a2s"
)

// Querier asks a server for its A2S info.
type Querier interface {
	Query(ip string, port int) (*domain.NetworkInfo, error)
}

// ExternalChecker asks a third party whether ip:port is publicly listed.
type ExternalChecker interface {
	Check(ctx context.Context, ip string, port int) (bool, error)
}

type A2SQuerier struct {
	Timeout    time.Duration
	BufferSize uint16
}

// Query connects to a game server via UDP and requests A2S_INFO.
func (q A2SQuerier) Query(ip string, port int) (*domain.NetworkInfo, error) {
	client, err := a2s.New(ip, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	if q.BufferSize > 0 {
		client.BufferSize = q.BufferSize
	}
	if q.Timeout > 0 {
		client.Timeout = q.Timeout
	}

	info, err := client.GetInfo()
	if err != nil {
		return nil, err
	}
	return &domain.NetworkInfo{
		Name:       info.Name,
		Map:        info.Map,
		Version:    info.Version,
		Players:    int(info.Players),
		MaxPlayers: int(info.MaxPlayers),
	}, nil
}

// HTTPChecker queries the Steam server list API. URLTemplate takes the ip and
// the port, in that order.
type HTTPChecker struct {
	URLTemplate string
	Client      *http.Client
}

type steamServersResponse struct {
	Response struct {
		Success bool `json:"success"`
		Servers []struct {
			Addr string `json:"addr"`
		} `json:"servers"`
	} `json:"response"`
}

func (c HTTPChecker) Check(ctx context.Context, ip string, port int) (bool, error) {
	if c.URLTemplate == "" {
		return false, nil
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(c.URLTemplate, ip, port), nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status check returned %d", resp.StatusCode)
	}

	var body steamServersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("could not decode status response: %w", err)
	}
	return body.Response.Success && len(body.Response.Servers) > 0, nil
}
