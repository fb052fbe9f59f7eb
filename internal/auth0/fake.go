package auth0

import (
	"context"
	"sync"
)

// FakeClient serves profiles registered against access tokens.
type FakeClient struct {
	mu       sync.Mutex
	profiles map[string]Profile
}

func NewFakeClient() *FakeClient {
	return &FakeClient{profiles: make(map[string]Profile)}
}

func (c *FakeClient) Profile(_ context.Context, accessToken string) (*Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.profiles[accessToken]
	if !ok {
		return nil, ErrTokenRejected
	}
	return &p, nil
}

func (c *FakeClient) Register(accessToken string, p Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[accessToken] = p
}
