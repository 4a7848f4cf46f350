// Package moltin implements commerce.Client on top of the Moltin (Elastic
// Path) REST API. Pizzerias and customer addresses live in flows.
package moltin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pizzabot/internal/commerce"
	"pizzabot/internal/models"
	"pizzabot/internal/platform"
)

const (
	DefaultBaseURL = "https://api.moltin.com"

	pizzeriasFlow = "pizzerias"
	addressesFlow = "addresses"

	// tokens are refreshed this long before they expire
	tokenSlack = 30 * time.Second
)

// Config holds the API credentials
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client talks to the Moltin API
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewClient creates a Moltin client
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

var _ commerce.Client = (*Client)(nil)

type price struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Formatted string `json:"formatted"`
}

// money converts minor units into a decimal amount
func (p price) money() models.Money {
	return models.Money{
		Amount:    decimal.New(p.Amount, -2),
		Currency:  p.Currency,
		Formatted: p.Formatted,
	}
}

type productData struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Meta        struct {
		DisplayPrice struct {
			WithTax price `json:"with_tax"`
		} `json:"display_price"`
	} `json:"meta"`
	Relationships struct {
		MainImage struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"main_image"`
	} `json:"relationships"`
}

type cartItemData struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Meta      struct {
		DisplayPrice struct {
			WithTax struct {
				Unit  price `json:"unit"`
				Value price `json:"value"`
			} `json:"with_tax"`
		} `json:"display_price"`
	} `json:"meta"`
}

// coordinate accepts both JSON numbers and numeric strings, flows store either
type coordinate float64

func (c *coordinate) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid coordinate %s: %w", data, err)
	}
	*c = coordinate(v)
	return nil
}

type pizzeriaEntry struct {
	ID        string     `json:"id"`
	Alias     string     `json:"pizza-alias"`
	Address   string     `json:"pizza-address"`
	Longitude coordinate `json:"longitude"`
	Latitude  coordinate `json:"latitude"`
	Deliverer string     `json:"deliverer"`
}

func (c *Client) ListProducts(ctx context.Context) ([]models.ProductRef, error) {
	var resp struct {
		Data []productData `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "products", nil, &resp); err != nil {
		return nil, err
	}

	refs := make([]models.ProductRef, 0, len(resp.Data))
	for _, p := range resp.Data {
		refs = append(refs, models.ProductRef{ID: p.ID, Name: p.Name})
	}
	return refs, nil
}

func (c *Client) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var resp struct {
		Data productData `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "products/"+url.PathEscape(productID), nil, &resp); err != nil {
		return nil, err
	}

	p := resp.Data
	return &models.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Meta.DisplayPrice.WithTax.money(),
		ImageID:     p.Relationships.MainImage.Data.ID,
	}, nil
}

func (c *Client) GetImageURL(ctx context.Context, imageID string) (string, error) {
	var resp struct {
		Data struct {
			Link struct {
				Href string `json:"href"`
			} `json:"link"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "files/"+url.PathEscape(imageID), nil, &resp); err != nil {
		return "", err
	}
	return resp.Data.Link.Href, nil
}

func (c *Client) AddToCart(ctx context.Context, cartRef, productID string, quantity int) error {
	body := map[string]any{
		"data": map[string]any{
			"id":       productID,
			"type":     "cart_item",
			"quantity": quantity,
		},
	}
	return c.do(ctx, http.MethodPost, "carts/"+url.PathEscape(cartRef)+"/items", body, nil)
}

func (c *Client) CartItems(ctx context.Context, cartRef string) ([]models.CartLine, error) {
	var resp struct {
		Data []cartItemData `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "carts/"+url.PathEscape(cartRef)+"/items", nil, &resp); err != nil {
		return nil, err
	}

	lines := make([]models.CartLine, 0, len(resp.Data))
	for _, item := range resp.Data {
		lines = append(lines, models.CartLine{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Meta.DisplayPrice.WithTax.Unit.money(),
			LineTotal: item.Meta.DisplayPrice.WithTax.Value.money(),
		})
	}
	return lines, nil
}

func (c *Client) RemoveCartItem(ctx context.Context, cartRef, lineID string) error {
	return c.do(ctx, http.MethodDelete, "carts/"+url.PathEscape(cartRef)+"/items/"+url.PathEscape(lineID), nil, nil)
}

func (c *Client) CartTotal(ctx context.Context, cartRef string) (models.Money, error) {
	var resp struct {
		Data struct {
			Meta struct {
				DisplayPrice struct {
					WithTax price `json:"with_tax"`
				} `json:"display_price"`
			} `json:"meta"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "carts/"+url.PathEscape(cartRef), nil, &resp); err != nil {
		return models.Money{}, err
	}
	return resp.Data.Meta.DisplayPrice.WithTax.money(), nil
}

func (c *Client) DeleteCart(ctx context.Context, cartRef string) error {
	return c.do(ctx, http.MethodDelete, "carts/"+url.PathEscape(cartRef), nil, nil)
}

func (c *Client) ListStores(ctx context.Context) ([]models.Store, error) {
	var resp struct {
		Data []pizzeriaEntry `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "flows/"+pizzeriasFlow+"/entries", nil, &resp); err != nil {
		return nil, err
	}

	stores := make([]models.Store, 0, len(resp.Data))
	for _, e := range resp.Data {
		stores = append(stores, models.Store{
			ID:           e.ID,
			Name:         e.Alias,
			Address:      e.Address,
			Location:     models.Coordinates{Lon: float64(e.Longitude), Lat: float64(e.Latitude)},
			DelivererKey: delivererKey(e.Deliverer),
		})
	}
	return stores, nil
}

// delivererKey accepts a full user key or a bare Telegram chat id
func delivererKey(v string) string {
	v = strings.TrimSpace(v)
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return platform.Key(platform.Telegram, v)
	}
	return v
}

func (c *Client) CreateCustomerEntry(ctx context.Context, entry models.CustomerEntry) error {
	body := map[string]any{
		"data": map[string]any{
			"type":          "entry",
			"order":         entry.OrderRef,
			"customer-name": entry.CustomerName,
			"longitude":     entry.Location.Lon,
			"latitude":      entry.Location.Lat,
		},
	}
	return c.do(ctx, http.MethodPost, "flows/"+addressesFlow+"/entries", body, nil)
}

// accessToken returns a cached client_credentials token, fetching a new one when needed
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to request access token: status %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode access token: %w", err)
	}

	c.token = token.AccessToken
	c.expiresAt = c.now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenSlack)
	return c.token, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/v2/"+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, commerce.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized:
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return fmt.Errorf("%s %s: unauthorized", method, path)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
