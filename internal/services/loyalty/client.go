package loyalty

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
	"time"

	"github.com/mcoot/dicefunnel/internal/model"
)

// Config holds settings for the loyalty platform's admin REST API
type Config struct {
	// StoreDomain is the shop's admin host, e.g. example.myshopify.com.
	// Empty disables the platform and every reward uses a local code.
	StoreDomain string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
	// CountryCode is prefixed to phone numbers when creating customers
	CountryCode string
	// BaseURL overrides the derived https://{StoreDomain}/admin/api/{APIVersion}
	BaseURL string
	// RedemptionBaseURL overrides the derived https://{StoreDomain}/discount/
	RedemptionBaseURL string
}

// DefaultConfig returns default loyalty configuration
func DefaultConfig() Config {
	return Config{
		APIVersion:  "2024-07",
		Timeout:     10 * time.Second,
		CountryCode: "+91",
	}
}

// Enabled reports whether a platform is configured
func (c Config) Enabled() bool {
	return c.StoreDomain != "" || c.BaseURL != ""
}

func (c Config) apiBase() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return fmt.Sprintf("https://%s/admin/api/%s", c.StoreDomain, c.APIVersion)
}

func (c Config) redemptionBase() string {
	if c.RedemptionBaseURL != "" {
		return strings.TrimRight(c.RedemptionBaseURL, "/") + "/"
	}
	if c.StoreDomain == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/discount/", c.StoreDomain)
}

// Wire types

type customerJSON struct {
	ID        int64  `json:"id,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Tags      string `json:"tags"`
}

func (c customerJSON) toModel() *model.Customer {
	return &model.Customer{
		ID:        strconv.FormatInt(c.ID, 10),
		Phone:     c.Phone,
		Email:     c.Email,
		FirstName: c.FirstName,
		Tags:      c.Tags,
	}
}

type customerEnvelope struct {
	Customer customerJSON `json:"customer"`
}

type customerListEnvelope struct {
	Customers []customerJSON `json:"customers"`
}

type priceRuleJSON struct {
	ID                int64  `json:"id,omitempty"`
	Title             string `json:"title"`
	TargetType        string `json:"target_type"`
	TargetSelection   string `json:"target_selection"`
	AllocationMethod  string `json:"allocation_method"`
	ValueType         string `json:"value_type"`
	Value             string `json:"value"`
	CustomerSelection string `json:"customer_selection"`
	StartsAt          string `json:"starts_at"`
	UsageLimit        int    `json:"usage_limit"`
}

type priceRuleEnvelope struct {
	PriceRule priceRuleJSON `json:"price_rule"`
}

type discountCodeJSON struct {
	ID          int64  `json:"id,omitempty"`
	Code        string `json:"code"`
	PriceRuleID int64  `json:"price_rule_id,omitempty"`
	UsageCount  int    `json:"usage_count,omitempty"`
}

type discountCodeEnvelope struct {
	DiscountCode discountCodeJSON `json:"discount_code"`
}

// DiscountCodeInfo is the platform's view of a discount code
type DiscountCodeInfo struct {
	ID          string
	Code        string
	PriceRuleID string
	UsageCount  int
}

// Client is a thin client for the loyalty platform's admin REST API.
// Every non-2xx answer is returned as *model.ExternalServiceError.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.apiBase()+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("X-Shopify-Access-Token", c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &model.ExternalServiceError{Service: "loyalty", Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &model.ExternalServiceError{Service: "loyalty", Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return &model.ExternalServiceError{
			Service:    "loyalty",
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", msg),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &model.ExternalServiceError{Service: "loyalty", Op: op, StatusCode: resp.StatusCode, Err: err}
		}
	}
	return nil
}

// FindCustomerByPhone returns the first customer whose phone matches, or
// model.ErrCustomerNotFound
func (c *Client) FindCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	q := url.Values{}
	q.Set("query", "phone:"+phone)

	var out customerListEnvelope
	if err := c.do(ctx, "find_customer", http.MethodGet, "/customers/search.json?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Customers) == 0 {
		return nil, model.ErrCustomerNotFound
	}
	return out.Customers[0].toModel(), nil
}

// CreateCustomer creates a customer. phone should already carry its country code.
func (c *Client) CreateCustomer(ctx context.Context, phone, name, email string) (*model.Customer, error) {
	in := customerEnvelope{Customer: customerJSON{Phone: phone, Email: email, FirstName: name}}
	var out customerEnvelope
	if err := c.do(ctx, "create_customer", http.MethodPost, "/customers.json", in, &out); err != nil {
		return nil, err
	}
	return out.Customer.toModel(), nil
}

// GetCustomer fetches a customer by numeric id
func (c *Client) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	var out customerEnvelope
	if err := c.do(ctx, "get_customer", http.MethodGet, "/customers/"+url.PathEscape(id)+".json", nil, &out); err != nil {
		return nil, err
	}
	return out.Customer.toModel(), nil
}

// UpdateCustomerTags replaces the customer's full tag string
func (c *Client) UpdateCustomerTags(ctx context.Context, id, tags string) (*model.Customer, error) {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, model.NewValidationError("customer_id", "must be numeric")
	}
	in := customerEnvelope{Customer: customerJSON{ID: numericID, Tags: tags}}
	var out customerEnvelope
	if err := c.do(ctx, "update_tags", http.MethodPut, "/customers/"+url.PathEscape(id)+".json", in, &out); err != nil {
		return nil, err
	}
	return out.Customer.toModel(), nil
}

// CreatePriceRule creates a single-use percentage price rule and returns its id
func (c *Client) CreatePriceRule(ctx context.Context, title string, percentage int, startsAt time.Time) (string, error) {
	in := priceRuleEnvelope{PriceRule: priceRuleJSON{
		Title:             title,
		TargetType:        "line_item",
		TargetSelection:   "all",
		AllocationMethod:  "across",
		ValueType:         "percentage",
		Value:             fmt.Sprintf("-%d", percentage),
		CustomerSelection: "all",
		StartsAt:          startsAt.UTC().Format(time.RFC3339),
		UsageLimit:        1,
	}}
	var out priceRuleEnvelope
	if err := c.do(ctx, "create_price_rule", http.MethodPost, "/price_rules.json", in, &out); err != nil {
		return "", err
	}
	return strconv.FormatInt(out.PriceRule.ID, 10), nil
}

// CreateDiscountCode attaches code to a price rule and returns the code's id
func (c *Client) CreateDiscountCode(ctx context.Context, priceRuleID, code string) (*DiscountCodeInfo, error) {
	in := discountCodeEnvelope{DiscountCode: discountCodeJSON{Code: code}}
	var out discountCodeEnvelope
	path := "/price_rules/" + url.PathEscape(priceRuleID) + "/discount_codes.json"
	if err := c.do(ctx, "create_discount_code", http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	return out.DiscountCode.toInfo(), nil
}

// LookupDiscountCode fetches a discount code by its text
func (c *Client) LookupDiscountCode(ctx context.Context, code string) (*DiscountCodeInfo, error) {
	q := url.Values{}
	q.Set("code", code)

	var out discountCodeEnvelope
	if err := c.do(ctx, "lookup_discount_code", http.MethodGet, "/discount_codes/lookup.json?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.DiscountCode.toInfo(), nil
}

// Ping checks that the platform answers authenticated requests
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/shop.json", nil, nil)
}

func (d discountCodeJSON) toInfo() *DiscountCodeInfo {
	return &DiscountCodeInfo{
		ID:          strconv.FormatInt(d.ID, 10),
		Code:        d.Code,
		PriceRuleID: strconv.FormatInt(d.PriceRuleID, 10),
		UsageCount:  d.UsageCount,
	}
}
