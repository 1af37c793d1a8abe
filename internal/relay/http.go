package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"castpair/internal/domain"
)

// ErrEmptyCode is returned when the service answers a registration without a code.
var ErrEmptyCode = errors.New("relay returned an empty pairing code")

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay %s %s: %s", strings.ToLower(e.Method), e.Path, e.Status)
}

// HTTP talks to the pairing service over JSON/HTTP.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for base. A nil httpClient means http.DefaultClient.
func NewHTTP(base string, httpClient *http.Client) *HTTP {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTP{Base: strings.TrimRight(base, "/"), HTTP: httpClient}
}

func (c *HTTP) RegisterDevice(ctx context.Context, publicKey string) (domain.PairingCode, error) {
	var out domain.DeviceCode
	if err := c.post(ctx, "/cast/device-info", domain.DeviceInfo{PublicKey: publicKey}, &out); err != nil {
		return "", err
	}
	if out.DeviceCode == "" {
		return "", ErrEmptyCode
	}
	return out.DeviceCode, nil
}

func (c *HTTP) FetchCastData(ctx context.Context, code domain.PairingCode) (string, error) {
	var out domain.CastData
	err := c.getJSON(ctx, "/cast/cast-data/"+url.PathEscape(code.String()), &out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return out.EncCastData, nil
}

func (c *HTTP) FetchDevicePublicKey(ctx context.Context, code domain.PairingCode) (string, error) {
	var out domain.DeviceInfo
	if err := c.getJSON(ctx, "/cast/device-info/"+url.PathEscape(code.String()), &out); err != nil {
		return "", err
	}
	return out.PublicKey, nil
}

func (c *HTTP) PublishCastData(ctx context.Context, code domain.PairingCode, encPayload string) error {
	return c.post(ctx, "/cast/cast-data", domain.CastDataClaim{DeviceCode: code, EncPayload: encPayload}, nil)
}

func (c *HTTP) post(ctx context.Context, path string, in any, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *HTTP) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *HTTP) do(req *http.Request, path string, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &StatusError{Method: req.Method, Path: path, Status: resp.Status, Code: resp.StatusCode}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var (
	_ domain.PairingClient = (*HTTP)(nil)
	_ domain.ClaimClient   = (*HTTP)(nil)
)
