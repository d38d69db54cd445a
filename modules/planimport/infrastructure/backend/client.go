// Package backend is the HTTP client of the planner backend: batch import, record listing,
// per-record writes and the user directory.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/modules/planimport/services"
	"github.com/seoplan/planner/pkg/logging"
	"github.com/seoplan/planner/pkg/serrors"
)

const mergePatchContentType = "application/merge-patch+json"

type Options struct {
	BaseURL string
	// Token is sent as a bearer token unless it already carries a scheme.
	Token           string
	Timeout         time.Duration
	RequestIDHeader string
	HTTPClient      *http.Client
	Logger          *logrus.Entry
}

func (o *Options) setDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}

type Client struct {
	baseURL *url.URL
	opts    Options
}

var (
	_ services.ImportBackend = (*Client)(nil)
	_ services.RecordStore   = (*Client)(nil)
	_ services.UserDirectory = (*Client)(nil)
)

func NewClient(opts Options) (*Client, error) {
	opts.setDefaults()
	raw := strings.TrimSpace(opts.BaseURL)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url: %q", raw)
	}
	return &Client{baseURL: u, opts: opts}, nil
}

type response struct {
	status int
	body   []byte
}

// do sends one request. Only failures to get a response, and 5xx answers, are errors;
// other statuses are returned for the caller to interpret.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, reqBody []byte) (response, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		body = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return response{}, serrors.Wrap(services.ErrTransport, "build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", contentType)
	}
	requestID := uuid.NewString()
	if c.opts.RequestIDHeader != "" {
		req.Header.Set(c.opts.RequestIDHeader, requestID)
	}
	if token := strings.TrimSpace(c.opts.Token); token != "" {
		if !strings.Contains(token, " ") {
			token = "Bearer " + token
		}
		req.Header.Set("Authorization", token)
	}

	log := c.opts.Logger.WithFields(logrus.Fields{"method": method, "path": path, "request_id": requestID})
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("backend request failed")
		return response{}, serrors.Wrap(services.ErrTransport, "%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, serrors.Wrap(services.ErrTransport, "%s %s: read body: %v", method, path, err)
	}
	log.WithField("status", resp.StatusCode).Debug("backend response")
	if resp.StatusCode >= 500 {
		return response{status: resp.StatusCode}, serrors.Wrap(services.ErrTransport, "%s %s: status %d: %s",
			method, path, resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 256))
	}
	return response{status: resp.StatusCode, body: respBody}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any) (response, error) {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return response{}, errors.Wrap(err, "marshal request")
		}
		payload = b
	}
	return c.do(ctx, method, path, query, "application/json", payload)
}

// expectOK decodes a 2xx body into out; any other status becomes an outcome.ErrRejected error.
func expectOK(resp response, out any) error {
	if resp.status < 200 || resp.status >= 300 {
		rej := outcome.Decode(resp.status, resp.body).(outcome.Rejected)
		return rej.Err()
	}
	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return serrors.Wrap(outcome.ErrRejected, "malformed response: %v", err)
	}
	return nil
}

// Import posts the batch and decodes the answer. Only transport failures are errors.
func (c *Client) Import(ctx context.Context, req services.ImportRequest) (outcome.Outcome, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/import", nil, req)
	if err != nil {
		return nil, err
	}
	return outcome.Decode(resp.status, resp.body), nil
}

func (c *Client) ListRecords(ctx context.Context, targets []record.TargetID) ([]record.Record, error) {
	q := url.Values{}
	for _, t := range targets {
		q.Add("target", t.String())
	}
	resp, err := c.doJSON(ctx, http.MethodGet, "/records", q, nil)
	if err != nil {
		return nil, err
	}
	var out []record.Record
	if err := expectOK(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type createRecordRequest struct {
	Project record.TargetID `json:"project"`
	item.Fields
}

func (c *Client) CreateRecord(ctx context.Context, target record.TargetID, fields item.Fields) (record.Record, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/records", nil, createRecordRequest{Project: target, Fields: fields})
	if err != nil {
		return record.Record{}, err
	}
	var out record.Record
	if err := expectOK(resp, &out); err != nil {
		return record.Record{}, err
	}
	return out, nil
}

func (c *Client) PatchRecord(ctx context.Context, id record.ID, mergePatch []byte) error {
	path := "/records/" + id.String()
	resp, err := c.do(ctx, http.MethodPatch, path, nil, mergePatchContentType, mergePatch)
	if err != nil {
		return err
	}
	return expectOK(resp, nil)
}

func (c *Client) DeleteRecords(ctx context.Context, ids []record.ID) error {
	resp, err := c.doJSON(ctx, http.MethodDelete, "/records", nil, struct {
		IDs []record.ID `json:"ids"`
	}{IDs: ids})
	if err != nil {
		return err
	}
	return expectOK(resp, nil)
}

func (c *Client) Users(ctx context.Context) ([]services.User, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/users", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []services.User
	if err := expectOK(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
