package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/ratelimit"

	"github.com/scriptducks/hashes-gui/internal/buildinfo"
	"github.com/scriptducks/hashes-gui/internal/domain"
)

const (
	DefaultHashesAPIURL      = "https://hashes.com/en/api"
	DefaultHashesDownloadURL = "http://hashes.com" // left lists 404 over https
	DefaultDownloadDelay     = 400 * time.Millisecond
	DefaultConversionTTL     = 60 * time.Second

	MaxLookupHashes = 250
)

// HashesClient talks to the hashes.com API. The API key is read through the
// getter on every call so a key saved from the shell applies immediately.
type HashesClient struct {
	apiKey      func(ctx context.Context) (string, error)
	apiURL      string
	downloadURL string
	client      *http.Client
	pacer       ratelimit.Limiter

	now           func() time.Time
	conversionTTL time.Duration
	mu            sync.Mutex
	rates         map[string]string
	ratesAt       time.Time
}

func NewHashesClient(apiKey func(ctx context.Context) (string, error)) *HashesClient {
	return &HashesClient{
		apiKey:        apiKey,
		apiURL:        DefaultHashesAPIURL,
		downloadURL:   DefaultHashesDownloadURL,
		client:        &http.Client{Timeout: 20 * time.Second},
		pacer:         newPacer(DefaultDownloadDelay),
		now:           time.Now,
		conversionTTL: DefaultConversionTTL,
	}
}

func (c *HashesClient) WithEndpoints(apiURL, downloadURL string) *HashesClient {
	if strings.TrimSpace(apiURL) != "" {
		c.apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	}
	if strings.TrimSpace(downloadURL) != "" {
		c.downloadURL = strings.TrimRight(strings.TrimSpace(downloadURL), "/")
	}
	return c
}

func (c *HashesClient) WithTimeout(d time.Duration) *HashesClient {
	if d > 0 {
		c.client = &http.Client{Timeout: d}
	}
	return c
}

// WithDownloadDelay sets the minimum spacing between left-list downloads.
func (c *HashesClient) WithDownloadDelay(d time.Duration) *HashesClient {
	c.pacer = newPacer(d)
	return c
}

func (c *HashesClient) WithConversionTTL(d time.Duration) *HashesClient {
	c.conversionTTL = d
	return c
}

func newPacer(d time.Duration) ratelimit.Limiter {
	if d <= 0 {
		return ratelimit.NewUnlimited()
	}
	return ratelimit.New(1, ratelimit.Per(d), ratelimit.WithoutSlack)
}

type algorithmsPayload struct {
	List []struct {
		ID            domain.Text `json:"id"`
		AlgorithmName domain.Text `json:"algorithmName"`
	} `json:"list"`
}

// Algorithms returns the supported algorithms ordered by numeric id.
func (c *HashesClient) Algorithms(ctx context.Context) ([]domain.Algorithm, error) {
	var out algorithmsPayload
	if err := c.requestJSON(ctx, http.MethodGet, "/algorithms", nil, nil, false, &out); err != nil {
		return nil, err
	}
	algs := make([]domain.Algorithm, 0, len(out.List))
	for _, item := range out.List {
		algs = append(algs, domain.Algorithm{ID: item.ID.String(), Name: item.AlgorithmName.String()})
	}
	SortAlgorithms(algs)
	return algs, nil
}

// SortAlgorithms orders by numeric id, non-numeric ids last.
func SortAlgorithms(algs []domain.Algorithm) {
	sort.SliceStable(algs, func(i, j int) bool {
		ni, ei := strconv.Atoi(algs[i].ID)
		nj, ej := strconv.Atoi(algs[j].ID)
		switch {
		case ei == nil && ej == nil:
			return ni < nj
		case ei == nil:
			return true
		case ej == nil:
			return false
		default:
			return algs[i].ID < algs[j].ID
		}
	})
}

type jobsPayload struct {
	List []domain.EscrowJob `json:"list"`
}

// Jobs lists the escrow jobs currently open on hashes.com, newest first.
func (c *HashesClient) Jobs(ctx context.Context) ([]domain.EscrowJob, error) {
	var out jobsPayload
	if err := c.requestJSON(ctx, http.MethodGet, "/jobs", nil, nil, true, &out); err != nil {
		return nil, err
	}
	if out.List == nil {
		out.List = []domain.EscrowJob{}
	}
	SortJobs(out.List, SortCreated, true)
	return out.List, nil
}

// Balance returns the account balance per currency.
func (c *HashesClient) Balance(ctx context.Context) (map[string]string, error) {
	var out map[string]domain.Text
	if err := c.requestJSON(ctx, http.MethodGet, "/balance", nil, nil, true, &out); err != nil {
		return nil, err
	}
	balance := make(map[string]string, len(out))
	for k, v := range out {
		if k == "success" {
			continue
		}
		balance[k] = v.String()
	}
	return balance, nil
}

type identifierPayload struct {
	Algorithms []domain.Text `json:"algorithms"`
}

// Identify asks hashes.com which algorithms could have produced hash.
func (c *HashesClient) Identify(ctx context.Context, hash string, extended bool) ([]string, error) {
	params := url.Values{}
	params.Set("hash", hash)
	params.Set("extended", strconv.FormatBool(extended))

	var out identifierPayload
	if err := c.requestJSON(ctx, http.MethodGet, "/identifier", params, nil, false, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Algorithms))
	for _, a := range out.Algorithms {
		names = append(names, a.String())
	}
	return names, nil
}

// Lookup searches hashes.com for already cracked plaintexts. Input lines are
// trimmed and de-duplicated first.
func (c *HashesClient) Lookup(ctx context.Context, hashes []string) (domain.LookupResult, error) {
	list := DedupeHashes(hashes)
	if len(list) == 0 {
		return domain.LookupResult{}, ErrNoHashes
	}
	if len(list) > MaxLookupHashes {
		return domain.LookupResult{}, ErrTooManyHashes
	}

	form := url.Values{}
	for _, h := range list {
		form.Add("hashes[]", h)
	}
	var out struct {
		Founds []domain.LookupFound `json:"founds"`
		Count  *domain.Text         `json:"count"`
		Cost   domain.Text          `json:"cost"`
	}
	if err := c.requestJSON(ctx, http.MethodPost, "/search", nil, form, true, &out); err != nil {
		return domain.LookupResult{}, err
	}
	res := domain.LookupResult{Founds: out.Founds, Count: len(list), Cost: out.Cost}
	if res.Founds == nil {
		res.Founds = []domain.LookupFound{}
	}
	if out.Count != nil {
		if n, err := strconv.Atoi(out.Count.String()); err == nil {
			res.Count = n
		}
	}
	return res, nil
}

// ConversionRates returns currency -> USD rates, cached for the conversion TTL.
func (c *HashesClient) ConversionRates(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	if c.rates != nil && c.now().Sub(c.ratesAt) < c.conversionTTL {
		rates := c.rates
		c.mu.Unlock()
		return rates, nil
	}
	c.mu.Unlock()

	var out map[string]domain.Text
	if err := c.requestJSON(ctx, http.MethodGet, "/conversion", nil, nil, false, &out); err != nil {
		return nil, err
	}
	rates := make(map[string]string, len(out))
	for k, v := range out {
		if k == "success" {
			continue
		}
		rates[k] = v.String()
	}

	c.mu.Lock()
	c.rates = rates
	c.ratesAt = c.now()
	c.mu.Unlock()
	return rates, nil
}

// ConvertToUSD formats value in currency as a dollar amount.
func (c *HashesClient) ConvertToUSD(ctx context.Context, value float64, currency string) (string, error) {
	if strings.EqualFold(currency, "credits") {
		return "N/A", nil
	}
	rates, err := c.ConversionRates(ctx)
	if err != nil {
		return "", err
	}
	rate, ok := rates[strings.ToUpper(currency)]
	if !ok {
		return "$0.00", nil
	}
	return fmt.Sprintf("$%.3f", value*domain.Text(rate).Float()), nil
}

// BalanceReport combines the balance with USD values for positive amounts.
func (c *HashesClient) BalanceReport(ctx context.Context) (domain.BalanceReport, error) {
	balance, err := c.Balance(ctx)
	if err != nil {
		return domain.BalanceReport{}, err
	}
	report := domain.BalanceReport{Rows: make([]domain.BalanceRow, 0, len(balance))}
	for currency, amount := range balance {
		usd := "$0.00"
		if n := domain.Text(amount).Float(); n > 0 {
			usd, err = c.ConvertToUSD(ctx, n, currency)
			if err != nil {
				return domain.BalanceReport{}, err
			}
			report.TotalUSD += domain.Text(strings.TrimPrefix(usd, "$")).Float()
		}
		report.Rows = append(report.Rows, domain.BalanceRow{Currency: currency, Amount: amount, USD: usd})
	}
	sort.Slice(report.Rows, func(i, j int) bool { return report.Rows[i].Currency < report.Rows[j].Currency })
	return report, nil
}

func (c *HashesClient) key(ctx context.Context) (string, error) {
	if c.apiKey == nil {
		return "", ErrAPIKeyRequired
	}
	k, err := c.apiKey(ctx)
	if err != nil {
		return "", err
	}
	k = strings.TrimSpace(k)
	if k == "" {
		return "", ErrAPIKeyRequired
	}
	return k, nil
}

func (c *HashesClient) requestJSON(ctx context.Context, method, path string, params, form url.Values, requiresKey bool, out any) error {
	if params == nil {
		params = url.Values{}
	}
	if requiresKey {
		k, err := c.key(ctx)
		if err != nil {
			return err
		}
		if method == http.MethodGet {
			params.Set("key", k)
		} else {
			if form == nil {
				form = url.Values{}
			}
			form.Set("key", k)
		}
	}

	u := c.apiURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &APIError{Message: "request failed", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &APIError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &APIError{Message: "request failed: " + resp.Status}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Message: "request failed", Err: err}
	}
	return decodePayload(b, out)
}

// decodePayload checks the envelope shared by every hashes.com response
// before decoding it into out.
func decodePayload(b []byte, out any) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(b, &envelope); err != nil {
		if !json.Valid(b) {
			return &APIError{Message: "received invalid JSON from hashes.com"}
		}
		return &APIError{Message: "unexpected API response format"}
	}
	if envelope == nil {
		return &APIError{Message: "unexpected API response format"}
	}
	if raw, ok := envelope["success"]; ok && bytes.Equal(bytes.TrimSpace(raw), []byte("false")) {
		msg := "API request failed."
		var m string
		if err := json.Unmarshal(envelope["message"], &m); err == nil && m != "" {
			msg = m
		}
		return &APIError{Message: msg}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &APIError{Message: "unexpected API response format", Err: err}
	}
	return nil
}
