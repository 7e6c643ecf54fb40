package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dkeye/Coderoom/internal/core"
	"github.com/dkeye/Coderoom/internal/domain"
)

// HTTPClient talks to a remote Identity & Room Directory service.
type HTTPClient struct {
	base   string
	client *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		base:   baseURL,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPClient) ResolveIdentity(ctx context.Context, token string) (*domain.User, error) {
	body, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/identity/resolve", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusNotFound:
		return nil, core.ErrBadToken
	default:
		return nil, fmt.Errorf("resolve identity: unexpected status %d", resp.StatusCode)
	}
	var user domain.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("resolve identity: decode: %w", err)
	}
	return &user, nil
}

func (c *HTTPClient) RoomExists(ctx context.Context, id domain.RoomID) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/rooms/"+string(id), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("room exists: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("room exists: unexpected status %d", resp.StatusCode)
	}
}

func (c *HTTPClient) CheckAccess(ctx context.Context, id domain.RoomID, user *domain.User, password string) error {
	body, _ := json.Marshal(map[string]string{
		"user_id":  string(user.ID),
		"password": password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/rooms/"+string(id)+"/access", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("check access: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusForbidden, http.StatusUnauthorized:
		return core.ErrAccessDenied
	case http.StatusNotFound:
		return core.ErrRoomNotFound
	default:
		return fmt.Errorf("check access: unexpected status %d", resp.StatusCode)
	}
}
