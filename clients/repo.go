package clients

import "context"

type Repo interface {
	Upsert(ctx context.Context, client *Client) error
	Delete(ctx context.Context, tenantID, clientID string) error
	Get(ctx context.Context, tenantID, clientID string) (*Client, error)
	List(ctx context.Context, tenantID string) ([]*Client, error)
}

type GrantRepo interface {
	Upsert(ctx context.Context, grant *ClientGrant) error
	// Find returns the grant for (clientID, audience) or errors.ErrNotFound.
	Find(ctx context.Context, tenantID, clientID, audience string) (*ClientGrant, error)
}
