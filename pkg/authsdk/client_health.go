package authsdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// GetLiveness checks if the process is up. It never touches the database.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.getHealth(ctx, "/livez")
}

// GetReadiness checks if the service can take traffic. A degraded service
// answers 503: the error is an *OAuth2Error and the returned report still
// says which dependency failed.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.getHealth(ctx, "/readyz")
}

func (c *SDKClient) getHealth(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusServiceUnavailable {
		var health HealthResponse
		if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
			return nil, err
		}
		return &health, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil || health.Status == "" {
		return nil, parseErrorResponse(resp, body)
	}
	return &health, &OAuth2Error{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: "service is " + health.Status,
	}
}
