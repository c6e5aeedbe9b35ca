// Package catalog reads the shop's product list and CraftID verification
// results from the upstream services.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/metrics"
	"go.uber.org/zap"
)

const (
	StatusAnchored = "anchored"
	StatusPending  = "pending"

	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = time.Minute
	maxBodyBytes    = 4 << 20
)

var (
	ErrNotFound = errors.New("catalog: not found")
	ErrUpstream = errors.New("catalog: upstream error")
)

type ArtisanInfo struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type ArtInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Photo       string `json:"photo"`
}

type VerificationData struct {
	PublicID        string  `json:"public_id"`
	PublicHash      *string `json:"public_hash"`
	VerificationURL string  `json:"verification_url"`
}

type Product struct {
	ArtisanInfo  ArtisanInfo      `json:"artisan_info"`
	ArtInfo      ArtInfo          `json:"art_info"`
	Verification VerificationData `json:"verification"`
}

type VerificationDetails struct {
	MetadataTampered   bool   `json:"metadata_tampered"`
	BlockchainVerified bool   `json:"blockchain_verified"`
	Reason             string `json:"reason"`
}

type VerificationResponse struct {
	PublicID            string              `json:"public_id"`
	Status              string              `json:"status"`
	PublicHash          string              `json:"public_hash"`
	StoredHash          string              `json:"stored_hash"`
	ComputedHash        string              `json:"computed_hash"`
	IsTampered          bool                `json:"is_tampered"`
	TxHash              *string             `json:"tx_hash"`
	AnchoredAt          *string             `json:"anchored_at"`
	BlockchainTimestamp *string             `json:"blockchain_timestamp"`
	Details             VerificationDetails `json:"verification_details"`
}

// Verified reports an anchored, untampered record confirmed on chain.
func (v VerificationResponse) Verified() bool {
	return v.Status == StatusAnchored && v.Details.BlockchainVerified && !v.IsTampered
}

// ExplorerURL links the anchoring transaction on a block explorer. It is
// empty when the record has no transaction yet.
func (v VerificationResponse) ExplorerURL(txBase string) string {
	if v.TxHash == nil || *v.TxHash == "" || txBase == "" {
		return ""
	}
	return strings.TrimRight(txBase, "/") + "/" + url.PathEscape(*v.TxHash)
}

// Cache stores the encoded product list.
type Cache interface {
	Get(ctx context.Context) ([]byte, bool, error)
	Set(ctx context.Context, data []byte, ttl time.Duration) error
}

type Options struct {
	ShopURL    string
	VerifyURL  string
	Timeout    time.Duration
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

type Client struct {
	shopURL   string
	verifyURL string
	http      *http.Client
	cache     Cache
	cacheTTL  time.Duration
	log       *zap.Logger
}

// New returns a catalog client. cache may be nil.
func New(opts Options, cache Cache, log *zap.Logger) (*Client, error) {
	shopURL, err := baseURL(opts.ShopURL)
	if err != nil {
		return nil, fmt.Errorf("shop url: %w", err)
	}
	verifyURL, err := baseURL(opts.VerifyURL)
	if err != nil {
		return nil, fmt.Errorf("verify url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		shopURL:   shopURL,
		verifyURL: verifyURL,
		http:      httpClient,
		cache:     cache,
		cacheTTL:  opts.CacheTTL,
		log:       log.Named("catalog"),
	}, nil
}

func (c *Client) Products(ctx context.Context) ([]Product, error) {
	if c.cache != nil {
		raw, ok, err := c.cache.Get(ctx)
		switch {
		case err != nil:
			metrics.ProductCache.WithLabelValues("error").Inc()
			c.log.Warn("read product cache", zap.Error(err))
		case ok:
			var cached []Product
			if err := json.Unmarshal(raw, &cached); err == nil {
				metrics.ProductCache.WithLabelValues("hit").Inc()
				return cached, nil
			}
		default:
			metrics.ProductCache.WithLabelValues("miss").Inc()
		}
	}

	raw, err := c.get(ctx, c.shopURL+"/get-products")
	if err != nil {
		return nil, err
	}
	products := make([]Product, 0)
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("%w: decode products: %w", ErrUpstream, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, raw, c.cacheTTL); err != nil {
			c.log.Warn("write product cache", zap.Error(err))
		}
	}
	return products, nil
}

func (c *Client) Verify(ctx context.Context, publicID string) (VerificationResponse, error) {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return VerificationResponse{}, ErrNotFound
	}
	raw, err := c.get(ctx, c.verifyURL+"/verify/"+url.PathEscape(publicID))
	if err != nil {
		return VerificationResponse{}, err
	}
	var out VerificationResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return VerificationResponse{}, fmt.Errorf("%w: decode verification: %w", ErrUpstream, err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstream, req.URL.Path, res.StatusCode)
	}
	return body, nil
}

func baseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid absolute url %q", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
