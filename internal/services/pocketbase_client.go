package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/asset-gallery/backend/internal/auth"
	"github.com/asset-gallery/backend/internal/models"
	"go.uber.org/zap"
)

const pocketBasePerPage = 500

// PocketBaseClient talks to the PocketBase REST API as an admin.
type PocketBaseClient struct {
	baseURL    string
	identity   string
	password   string
	httpClient *http.Client
	log        *zap.Logger
}

func NewPocketBaseClient(baseURL, identity, password string, timeout time.Duration, log *zap.Logger) *PocketBaseClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PocketBaseClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: identity,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type pocketBaseAuthResponse struct {
	Token string `json:"token"`
}

type pocketBaseListResponse struct {
	Page       int                     `json:"page"`
	PerPage    int                     `json:"perPage"`
	TotalItems int                     `json:"totalItems"`
	TotalPages int                     `json:"totalPages"`
	Items      []models.ActivityRecord `json:"items"`
}

// Authenticate exchanges the admin identity and password for a token.
func (c *PocketBaseClient) Authenticate(ctx context.Context) (*models.Credential, error) {
	body, err := json.Marshal(map[string]string{
		"identity": c.identity,
		"password": c.password,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/admins/auth-with-password", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pocketbase unavailable: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, newUpstreamError("pocketbase", "authenticate", resp)
	}

	var result pocketBaseAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if result.Token == "" {
		return nil, fmt.Errorf("no authentication token received")
	}

	return &models.Credential{
		Token:     result.Token,
		ExpiresAt: auth.TokenExpiry(result.Token),
	}, nil
}

// ListRecords returns every record of collection matching filter, walking all pages.
func (c *PocketBaseClient) ListRecords(ctx context.Context, cred *models.Credential, collection, filter string) ([]models.ActivityRecord, error) {
	var records []models.ActivityRecord

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("perPage", strconv.Itoa(pocketBasePerPage))
		q.Set("skipTotal", "false")
		if filter != "" {
			q.Set("filter", filter)
		}

		endpoint := fmt.Sprintf("%s/api/collections/%s/records?%s", c.baseURL, url.PathEscape(collection), q.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req, cred)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("pocketbase unavailable: %w", err)
		}

		if !isSuccess(resp.StatusCode) {
			upErr := newUpstreamError("pocketbase", "list "+collection, resp)
			resp.Body.Close()
			return nil, upErr
		}

		var list pocketBaseListResponse
		err = json.NewDecoder(resp.Body).Decode(&list)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s page %d: %w", collection, page, err)
		}

		records = append(records, list.Items...)

		if len(list.Items) == 0 || page >= list.TotalPages {
			break
		}
	}

	return records, nil
}

// GetActor fetches one user record.
func (c *PocketBaseClient) GetActor(ctx context.Context, cred *models.Credential, collection, id string) (*models.Actor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordURL(collection, id), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req, cred)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pocketbase unavailable: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, newUpstreamError("pocketbase", "get "+collection+"/"+id, resp)
	}

	var actor models.Actor
	if err := json.NewDecoder(resp.Body).Decode(&actor); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return &actor, nil
}

// UpdateActorStatus patches the status field of one user record.
func (c *PocketBaseClient) UpdateActorStatus(ctx context.Context, cred *models.Credential, collection, id, status string) error {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.recordURL(collection, id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.authorize(req, cred)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pocketbase unavailable: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return newUpstreamError("pocketbase", "update "+collection+"/"+id, resp)
	}
	return nil
}

func (c *PocketBaseClient) recordURL(collection, id string) string {
	return fmt.Sprintf("%s/api/collections/%s/records/%s", c.baseURL, url.PathEscape(collection), url.PathEscape(id))
}

func (c *PocketBaseClient) authorize(req *http.Request, cred *models.Credential) {
	if cred != nil && cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}
}

// CreatedSinceFilter builds the server-side filter for records created at or after since.
func CreatedSinceFilter(since time.Time) string {
	return fmt.Sprintf("(created>='%s')", since.UTC().Format(models.PocketBaseTimeLayout))
}
