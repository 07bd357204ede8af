package sdk

import (
	"context"
	"net/url"
)

func (c *Client) startRun(ctx context.Context, path string, body any) (*Run, error) {
	var run Run
	if err := c.post(ctx, path, body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) Backup(ctx context.Context, id string) (*Run, error) {
	return c.startRun(ctx, "/profiles/"+url.PathEscape(id)+"/backup", nil)
}

func (c *Client) Shutdown(ctx context.Context, id string, req ShutdownRequest) (*Run, error) {
	return c.startRun(ctx, "/profiles/"+url.PathEscape(id)+"/shutdown", req)
}

// Stop terminates the server without warnings or a countdown.
func (c *Client) Stop(ctx context.Context, id string) (*Run, error) {
	return c.startRun(ctx, "/profiles/"+url.PathEscape(id)+"/stop", nil)
}

func (c *Client) Start(ctx context.Context, id string) (*Run, error) {
	return c.startRun(ctx, "/profiles/"+url.PathEscape(id)+"/start", nil)
}

func (c *Client) Update(ctx context.Context, id string, req UpdateRequest) (*Run, error) {
	return c.startRun(ctx, "/profiles/"+url.PathEscape(id)+"/update", req)
}

func (c *Client) UpdateBranch(ctx context.Context, b Branch) (*Run, error) {
	return c.startRun(ctx, "/branches/update", b)
}

func (c *Client) ListRuns(ctx context.Context) ([]Run, error) {
	var runs []Run
	err := c.get(ctx, "/runs", &runs)
	return runs, err
}

func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.get(ctx, "/runs/"+url.PathEscape(id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// WaitRun blocks until the run finishes or ctx is done.
func (c *Client) WaitRun(ctx context.Context, id string) (*Run, error) {
	for {
		var run Run
		if err := c.get(ctx, "/runs/"+url.PathEscape(id)+"?wait=true", &run); err != nil {
			return nil, err
		}
		if run.Finished() {
			return &run, nil
		}
		if err := ctx.Err(); err != nil {
			return &run, err
		}
	}
}

func (c *Client) CancelRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.post(ctx, "/runs/"+url.PathEscape(id)+"/cancel", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}
