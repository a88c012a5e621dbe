package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tomyedwab/sqlight/engine"
	"github.com/tomyedwab/sqlight/worker/types"
)

// CallHost delivers one encoded request and returns the encoded response.
type CallHost func(ctx context.Context, requestPayload []byte) (responsePayload []byte, err error)

// Client issues worker commands through a CallHost function.
type Client struct {
	call CallHost
}

func New(call CallHost) *Client {
	return &Client{call: call}
}

func (c *Client) roundTrip(ctx context.Context, req types.Request) (*types.Response, error) {
	if c.call == nil {
		return nil, fmt.Errorf("sqlight: CallHost function is not set")
	}
	reqPayload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("sqlight: failed to marshal %s request: %w", req.Command, err)
	}
	respPayload, err := c.call(ctx, reqPayload)
	if err != nil {
		return nil, fmt.Errorf("sqlight: CallHost for %s failed: %w", req.Command, err)
	}
	var resp types.Response
	if err := json.Unmarshal(respPayload, &resp); err != nil {
		return nil, fmt.Errorf("sqlight: failed to unmarshal %s response: %w", req.Command, err)
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	if resp.Command != req.Command {
		return nil, fmt.Errorf("sqlight: got %s response to %s request", resp.Command, req.Command)
	}
	return &resp, nil
}

func (c *Client) result(ctx context.Context, req types.Request) (engine.StatementResult, error) {
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return engine.StatementResult{}, err
	}
	if resp.Result == nil {
		return engine.StatementResult{}, fmt.Errorf("sqlight: host did not return a result for %s", req.Command)
	}
	return *resp.Result, nil
}

// Open opens filename in the persistent or memory backend and returns the
// session id.
func (c *Client) Open(ctx context.Context, filename string, persist bool) (string, error) {
	resp, err := c.roundTrip(ctx, types.Request{Command: types.CommandOpen, Filename: filename, Persist: persist})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) Prepare(ctx context.Context, id, sql string, clearOnPrepare bool) error {
	_, err := c.roundTrip(ctx, types.Request{Command: types.CommandPrepare, ID: id, SQL: sql, ClearOnPrepare: clearOnPrepare})
	return err
}

func (c *Client) Continue(ctx context.Context, id string) ([]engine.StatementResult, error) {
	resp, err := c.roundTrip(ctx, types.Request{Command: types.CommandContinue, ID: id})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) StepOver(ctx context.Context, id string) (engine.StatementResult, error) {
	return c.result(ctx, types.Request{Command: types.CommandStepOver, ID: id})
}

func (c *Client) StepIn(ctx context.Context, id string) error {
	_, err := c.roundTrip(ctx, types.Request{Command: types.CommandStepIn, ID: id})
	return err
}

func (c *Client) StepOut(ctx context.Context, id string) (engine.StatementResult, error) {
	return c.result(ctx, types.Request{Command: types.CommandStepOut, ID: id})
}

func (c *Client) LoadDB(ctx context.Context, id string, data []byte) error {
	_, err := c.roundTrip(ctx, types.Request{Command: types.CommandLoadDB, ID: id, Data: data})
	return err
}

// DownloadDB returns the session's filename and database contents.
func (c *Client) DownloadDB(ctx context.Context, id string) (string, []byte, error) {
	resp, err := c.roundTrip(ctx, types.Request{Command: types.CommandDownloadDB, ID: id})
	if err != nil {
		return "", nil, err
	}
	return resp.Filename, resp.Data, nil
}

func (c *Client) Close(ctx context.Context, id string) error {
	_, err := c.roundTrip(ctx, types.Request{Command: types.CommandClose, ID: id})
	return err
}
