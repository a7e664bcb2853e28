// Package layan issues new eSIMs through the Layan-T reseller API.
package layan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/esimrouter/internal/common"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
)

// MaxFailedRounds ends IssueBatch after this many rounds in a row issue nothing.
const MaxFailedRounds = 3

// TokenStore persists the API token between runs.
type TokenStore interface {
	Get(ctx context.Context, name string) (string, error)
	Put(ctx context.Context, name, value string) error
}

// Package is a restockable Layan-T package.
type Package struct {
	ID    string
	Price float64
}

// ESIM is one issued eSIM: a link to its QR image and its phone number.
type ESIM struct {
	QRCodeURL   string
	PhoneNumber string
}

type Number struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phoneNumber"`
	IsActive    bool   `json:"isActive"`
}

type EmptySIM struct {
	URL   string  `json:"url"`
	ID    string  `json:"id"`
	SIM   string  `json:"sim"`
	Price float64 `json:"price"`
}

type Options struct {
	BaseURL    string
	Username   string
	Password   string
	TokenParam string
	Customer   string
	Workers    int
	HTTPClient *http.Client
}

type Client struct {
	base       string
	username   string
	password   string
	tokenParam string
	customer   string
	workers    int
	http       *http.Client
	tokens     TokenStore
	log        logging.Logger
	now        func() time.Time

	mu       sync.Mutex
	token    string
	rejected string
}

// New builds a client. tokens may be nil, in which case the token lives
// only as long as the client.
func New(o Options, tokens TokenStore, log logging.Logger) *Client {
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	workers := o.Workers
	if workers < 1 {
		workers = 5
	}
	base := o.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Client{
		base:       base,
		username:   o.Username,
		password:   o.Password,
		tokenParam: o.TokenParam,
		customer:   o.Customer,
		workers:    workers,
		http:       hc,
		tokens:     tokens,
		log:        log,
		now:        time.Now,
	}
}

// bearer returns a live token, trying the cached value, then the token
// store, then a fresh login.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tokenValid(c.token, c.now()) {
		return c.token, nil
	}
	if c.tokens != nil && c.tokenParam != "" {
		tok, err := c.tokens.Get(ctx, c.tokenParam)
		if err != nil {
			c.log.Warn(ctx, "layan: stored token unavailable", "error", err)
		} else if tok != c.rejected && tokenValid(tok, c.now()) {
			c.token = tok
			return tok, nil
		}
	}

	tok, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.token = tok
	if c.tokens != nil && c.tokenParam != "" {
		if err := c.tokens.Put(ctx, c.tokenParam, tok); err != nil {
			c.log.Warn(ctx, "layan: failed to store token", "error", err)
		}
	}
	return tok, nil
}

func (c *Client) invalidate(tok string) {
	c.mu.Lock()
	if c.token == tok {
		c.token = ""
	}
	c.rejected = tok
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) (string, error) {
	var out struct {
		Data struct {
			JWT string `json:"jwt"`
		} `json:"data"`
	}
	body := map[string]string{"username": c.username, "password": c.password}
	if err := c.send(ctx, http.MethodPost, "Auth/Login", "", body, &out); err != nil {
		return "", fmt.Errorf("layan login: %w", err)
	}
	if out.Data.JWT == "" {
		return "", errors.New("layan login: empty token")
	}
	return out.Data.JWT, nil
}

// call performs an authenticated request, logging in again once if the
// token was rejected.
func (c *Client) call(ctx context.Context, method, endpoint string, in, out any) error {
	for attempt := 0; ; attempt++ {
		tok, err := c.bearer(ctx)
		if err != nil {
			return err
		}
		err = c.send(ctx, method, endpoint, tok, in, out)
		if errors.Is(err, common.ErrTokenExpired) && attempt == 0 {
			c.invalidate(tok)
			continue
		}
		return err
	}
}

func (c *Client) send(ctx context.Context, method, endpoint, tok string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("LANG", "ar")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", method, endpoint, common.ErrTokenExpired)
	}
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status code: %d: %s", method, endpoint, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, endpoint, err)
	}
	return nil
}

// AvailableNumbers lists the phone numbers the API offers for pkg, at most
// five at a time.
func (c *Client) AvailableNumbers(ctx context.Context, packageID string) ([]Number, error) {
	var out []Number
	if err := c.call(ctx, http.MethodPost, "Numbers/GetAvailableNumbersForPackage/"+packageID+"/true", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EmptySIM reserves a blank eSIM of packageID for phone.
func (c *Client) EmptySIM(ctx context.Context, packageID, phone string) (EmptySIM, error) {
	var out EmptySIM
	err := c.call(ctx, http.MethodGet, "Packages/GetEmptySim/"+packageID+"/"+phone, nil, &out)
	return out, err
}

type customer struct {
	ID          *string `json:"Id"`
	IdentityNum string  `json:"IdentityNum"`
	Fullname    string  `json:"Fullname"`
	Address     string  `json:"Address"`
	Phone       string  `json:"Phone"`
	Email       string  `json:"Email"`
}

type newLine struct {
	Price                  float64  `json:"Price"`
	Number                 string   `json:"Number"`
	PackageID              string   `json:"packageId"`
	SimNumber              string   `json:"SimNumber"`
	Customer               customer `json:"Customer"`
	Duration               int      `json:"Duration"`
	AutomaticRenew         bool     `json:"AutomaticRenew"`
	IsPaid                 bool     `json:"isPaid"`
	SaleID                 *string  `json:"SaleId"`
	RecommendedPhoneNumber string   `json:"recommendedPhoneNumber"`
}

// NewLine activates sim on phone. Activation completes asynchronously on
// the vendor side.
func (c *Client) NewLine(ctx context.Context, pkg Package, phone, sim string) error {
	return c.call(ctx, http.MethodPost, "Deals/NewLine", newLine{
		Price:     pkg.Price,
		Number:    phone,
		PackageID: pkg.ID,
		SimNumber: sim,
		Customer:  customer{Fullname: c.customer},
		Duration:  30,
	}, nil)
}

// Issue reserves and activates one eSIM on phone.
func (c *Client) Issue(ctx context.Context, pkg Package, phone string) (ESIM, error) {
	sim, err := c.EmptySIM(ctx, pkg.ID, phone)
	if err != nil {
		return ESIM{}, err
	}
	if err := c.NewLine(ctx, pkg, phone, sim.SIM); err != nil {
		return ESIM{}, err
	}
	return ESIM{QRCodeURL: sim.URL, PhoneNumber: phone}, nil
}

// IssueRound issues one eSIM per available number, concurrently. Failed
// issuances are logged and left out of the result.
func (c *Client) IssueRound(ctx context.Context, pkg Package) ([]ESIM, error) {
	numbers, err := c.AvailableNumbers(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return nil, common.ErrNoNumbersAvailable
	}

	var (
		mu     sync.Mutex
		issued []ESIM
	)
	var g errgroup.Group
	g.SetLimit(c.workers)
	for _, n := range numbers {
		g.Go(func() error {
			e, err := c.Issue(ctx, pkg, n.PhoneNumber)
			if err != nil {
				c.log.Error(ctx, "layan: issue failed", "package_id", pkg.ID, "phone", n.PhoneNumber, "error", err)
				return nil
			}
			mu.Lock()
			issued = append(issued, e)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return issued, nil
}

// IssueBatch issues rounds until at least target eSIMs exist or
// MaxFailedRounds rounds in a row produced none. The count is approximate:
// the last round may overshoot target.
func (c *Client) IssueBatch(ctx context.Context, pkg Package, target int) ([]ESIM, error) {
	var issued []ESIM
	failed := 0
	for len(issued) < target {
		if err := ctx.Err(); err != nil {
			return issued, err
		}
		round, err := c.IssueRound(ctx, pkg)
		if err != nil && !errors.Is(err, common.ErrNoNumbersAvailable) {
			return issued, err
		}
		if len(round) == 0 {
			failed++
			if failed >= MaxFailedRounds {
				c.log.Error(ctx, "layan: consecutive rounds issued nothing, giving up",
					"package_id", pkg.ID, "rounds", failed, "issued", len(issued))
				break
			}
			continue
		}
		failed = 0
		issued = append(issued, round...)
	}
	return issued, nil
}
