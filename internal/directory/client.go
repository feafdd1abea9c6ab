package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"

	"revhealth/internal/constants"
	"revhealth/internal/domain"
)

// Client resolves accounts against the remote CRM directory API. Used when
// the revenue console, not this service, is the system of record for
// accounts.
type Client struct {
	baseURL string
	apiKey  string
	client  *fasthttp.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.DirectoryTimeout,
			WriteTimeout:        constants.DirectoryTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

type accountResponse struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
	Tier string `json:"tier"`
}

func (c *Client) FindBySlug(ctx context.Context, slug string) (*domain.Account, error) {
	return c.fetch(ctx, fmt.Sprintf("%s/directory/accounts/by-slug/%s", c.baseURL, url.PathEscape(slug)))
}

func (c *Client) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return c.fetch(ctx, fmt.Sprintf("%s/directory/accounts/%s", c.baseURL, url.PathEscape(id)))
}

func (c *Client) fetch(ctx context.Context, requestURL string) (*domain.Account, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", c.apiKey)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := c.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() == fasthttp.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("directory API error: %d", resp.StatusCode())
	}

	var account accountResponse
	if err := json.Unmarshal(resp.Body(), &account); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}

	return &domain.Account{
		ID:   account.ID,
		Slug: account.Slug,
		Name: account.Name,
		Tier: account.Tier,
	}, nil
}
