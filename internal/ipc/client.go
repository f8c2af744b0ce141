package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"framecache/internal/daemon"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start caching.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop caching.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	return call[ShutdownResponse](c, "Shutdown", ShutdownRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Seek moves the playhead to frame of item.
func (c *Client) Seek(item string, frame int) (*PositionResponse, error) {
	return call[PositionResponse](c, "Seek", SeekRequest{Item: item, Frame: frame})
}

// Step moves the playhead by delta frames.
func (c *Client) Step(delta int) (*PositionResponse, error) {
	return call[PositionResponse](c, "Step", StepRequest{Delta: delta})
}

// Select makes item current.
func (c *Client) Select(item string) (*PositionResponse, error) {
	return call[PositionResponse](c, "Select", SelectRequest{Item: item})
}

// Play starts the playback feed.
func (c *Client) Play(reverse bool) (*PositionResponse, error) {
	return call[PositionResponse](c, "Play", PlayRequest{Reverse: reverse})
}

// Pause stops the playback feed.
func (c *Client) Pause() (*PositionResponse, error) {
	return call[PositionResponse](c, "Pause", PauseRequest{})
}

// Remove deletes item from the playlist.
func (c *Client) Remove(item string) (*RemoveResponse, error) {
	return call[RemoveResponse](c, "Remove", RemoveRequest{Item: item})
}

// Load queues an interactive decode of one frame.
func (c *Client) Load(item string, frame int) (*LoadResponse, error) {
	return call[LoadResponse](c, "Load", LoadRequest{Item: item, Frame: frame})
}

// Settings applies update and returns the effective settings.
func (c *Client) Settings(update daemon.SettingsUpdate) (*SettingsResponse, error) {
	return call[SettingsResponse](c, "Settings", SettingsRequest{Update: update})
}

// Plan returns a preview of the current cache plan.
func (c *Client) Plan() (*PlanResponse, error) {
	return call[PlanResponse](c, "Plan", PlanRequest{})
}

// History returns up to limit rate samples, newest first.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	return call[HistoryResponse](c, "History", HistoryRequest{Limit: limit})
}

// LogTail reads lines from the daemon log.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}
