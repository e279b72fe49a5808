package ipc

import (
	"context"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"subburn/internal/jobs"
	"subburn/internal/services"
)

const dialTimeout = 2 * time.Second

// Client provides RPC access to the daemon.
type Client struct {
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, services.Wrap(services.ErrCollaboratorUnavailable, "", "ipc", "daemon not reachable at "+path, err)
	}
	return &Client{client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	call := c.client.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		return decodeError(call.Error)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit starts a job on the daemon.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	var resp SubmitResponse
	if err := c.call(ctx, "Submit", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Status fetches a job snapshot.
func (c *Client) Status(ctx context.Context, id string) (*jobs.Job, error) {
	var resp StatusResponse
	if err := c.call(ctx, "Status", StatusRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return resp.Job, nil
}

// List returns the owner's jobs, or all jobs when owner is empty.
func (c *Client) List(ctx context.Context, owner string) ([]*jobs.Job, error) {
	var resp ListResponse
	if err := c.call(ctx, "List", ListRequest{Owner: owner}, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Cancel aborts a running job.
func (c *Client) Cancel(ctx context.Context, id string) error {
	var resp CancelResponse
	return c.call(ctx, "Cancel", CancelRequest{ID: id}, &resp)
}

// Health returns daemon diagnostics.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.call(ctx, "Health", HealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Wait polls Status until the job is terminal or ctx ends.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (*jobs.Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
