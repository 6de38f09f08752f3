package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dantte-lp/vdabridge/internal/bridge"
	"github.com/dantte-lp/vdabridge/internal/server"
)

// errRequestFailed is returned when the daemon answers with a non-OK status.
var errRequestFailed = errors.New("request failed")

// apiClient is a thin JSON client for the vdabridge admin REST API.
type apiClient struct {
	base string
	hc   *http.Client
}

func newAPIClient(addr string) *apiClient {
	return &apiClient{
		base: "http://" + addr,
		hc:   http.DefaultClient,
	}
}

func (c *apiClient) status(ctx context.Context) (server.StatusResponse, error) {
	var st server.StatusResponse
	if err := c.getJSON(ctx, "/api/v1/status", &st); err != nil {
		return server.StatusResponse{}, err
	}

	return st, nil
}

func (c *apiClient) listAGVs(ctx context.Context) ([]bridge.VehicleStatus, error) {
	var resp server.AGVListResponse
	if err := c.getJSON(ctx, "/api/v1/agvs", &resp); err != nil {
		return nil, err
	}

	return resp.AGVs, nil
}

func (c *apiClient) getAGV(ctx context.Context, serial string) (bridge.VehicleStatus, error) {
	var vs bridge.VehicleStatus
	if err := c.getJSON(ctx, "/api/v1/agvs/"+url.PathEscape(serial), &vs); err != nil {
		return bridge.VehicleStatus{}, err
	}

	return vs, nil
}

// getJSON performs one GET against the admin API and decodes the response
// body into out. Non-OK responses become errors carrying the daemon's
// error message when one is present.
func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := resp.Status

		var apiErr server.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}

		return fmt.Errorf("GET %s: %w: %s", path, errRequestFailed, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	return nil
}
