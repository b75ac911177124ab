package lnurlw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// Client talks to LN SERVICEs and card issuers over HTTP. It never retries.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a Client using the given http.Client, or
// http.DefaultClient if nil.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{httpClient: httpClient}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get issues a GET request and reads the whole body. Only failures to
// complete the exchange are returned as errors, any status code is a valid
// Response.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: url, Err: err}
	}

	return c.do(req)
}

// PostJSON marshals body and POSTs it to url.
func (c *Client) PostJSON(ctx context.Context, url string, body interface{},
	header http.Header) (*Response, error) {

	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader(b),
	)
	if err != nil {
		return nil, &TransportError{Method: http.MethodPost, URL: url, Err: err}
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{
			Method: req.Method, URL: req.URL.String(), Err: err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{
			Method: req.Method, URL: req.URL.String(),
			Err: fmt.Errorf("could not read response body: %w", err),
		}
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// FetchWithdrawParams resolves the LNURL and queries LN SERVICE for its
// withdraw parameters.
func (c *Client) FetchWithdrawParams(ctx context.Context,
	lnurl string) (*WithdrawParams, error) {

	u, err := ToURL(lnurl)
	if err != nil {
		return nil, &ProtocolMismatchError{Reason: err.Error()}
	}

	resp, err := c.Get(ctx, u)
	if err != nil {
		return nil, err
	}

	params, err := ParseWithdrawParams(resp.Body)

	var mismatch *ProtocolMismatchError
	if errors.As(err, &mismatch) && !resp.OK() &&
		(mismatch.Reason == "" || mismatch.Reason == reasonInvalidJSON) {

		mismatch.Reason = fmt.Sprintf("HTTP error code: %d",
			resp.StatusCode)
	}

	return params, err
}

const reasonInvalidJSON = "response is not valid JSON"

// ParseWithdrawParams validates an LN SERVICE response. It either returns
// params tagged withdrawRequest or a *ProtocolMismatchError.
func ParseWithdrawParams(body []byte) (*WithdrawParams, error) {
	var resp WithdrawResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ProtocolMismatchError{Reason: reasonInvalidJSON}
	}

	if strings.EqualFold(resp.Status, StatusError) {
		return nil, &ProtocolMismatchError{
			Tag: resp.Tag, Reason: resp.Reason,
		}
	}

	if resp.Tag != TypeWithdrawRequest {
		return nil, &ProtocolMismatchError{
			Tag: resp.Tag, Reason: resp.Reason,
		}
	}

	if resp.Callback == "" || resp.K1 == "" {
		return nil, &ProtocolMismatchError{
			Tag:    resp.Tag,
			Reason: "response is missing callback or k1",
		}
	}

	return &WithdrawParams{
		Tag:                resp.Tag,
		Callback:           resp.Callback,
		K1:                 resp.K1,
		Reason:             resp.Reason,
		MinWithdrawable:    resp.MinWithdrawable,
		MaxWithdrawable:    resp.MaxWithdrawable,
		DefaultDescription: resp.DefaultDescription,
	}, nil
}

// CallbackURL sets k1 and pr on the callback URL, keeping any query it
// already carries.
func CallbackURL(params *WithdrawParams, invoice string) (string, error) {
	u, err := url.Parse(params.Callback)
	if err != nil {
		return "", fmt.Errorf("invalid callback url: %w", err)
	}

	q := u.Query()
	q.Set("k1", params.K1)
	q.Set("pr", invoice)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// CallbackResult is the LN SERVICE answer to a withdraw callback.
type CallbackResult struct {
	HTTPStatus int
	Status     string
	Reason     string
	Message    string
}

// OK reports whether the HTTP status was 2xx.
func (r *CallbackResult) OK() bool {
	return r.HTTPStatus >= 200 && r.HTTPStatus < 300
}

// Callback presents k1 and the invoice to LN SERVICE.
func (c *Client) Callback(ctx context.Context, params *WithdrawParams,
	invoice string) (*CallbackResult, error) {

	u, err := CallbackURL(params, invoice)
	if err != nil {
		return nil, &ProtocolMismatchError{
			Tag: params.Tag, Reason: err.Error(),
		}
	}

	resp, err := c.Get(ctx, u)
	if err != nil {
		return nil, err
	}

	return ParseCallbackResponse(resp.StatusCode, resp.Body), nil
}

// ParseCallbackResponse extracts status, reason and message from a callback
// body. Bodies which are not JSON leave them empty.
func ParseCallbackResponse(statusCode int, body []byte) *CallbackResult {
	res := &CallbackResult{HTTPStatus: statusCode}
	if !gjson.ValidBytes(body) {
		return res
	}

	fields := gjson.GetManyBytes(body, "status", "reason", "message")
	res.Status = fields[0].String()
	res.Reason = fields[1].String()
	res.Message = fields[2].String()

	return res
}
