package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"twoway-sms/internal/models"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 1 << 20
	availableLimit   = "20"
)

// restClient speaks the 2010-04-01 REST dialect shared by Twilio and the
// SignalWire LaML API.
type restClient struct {
	provider   models.Provider
	baseURL    string // up to and excluding /2010-04-01
	account    string
	token      string
	webhookURL string // public base of our own webhooks
	httpClient *http.Client
}

func newRESTClient(p models.Provider, baseURL, account, token, webhookURL string, hc *http.Client) *restClient {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &restClient{
		provider:   p,
		baseURL:    strings.TrimRight(baseURL, "/"),
		account:    account,
		token:      token,
		webhookURL: strings.TrimRight(webhookURL, "/"),
		httpClient: hc,
	}
}

func (c *restClient) Name() models.Provider { return c.provider }

func (c *restClient) accountURL(path string) string {
	return c.baseURL + "/2010-04-01/Accounts/" + url.PathEscape(c.account) + "/" + path
}

func (c *restClient) hookURL(name string) string {
	return c.webhookURL + "/api/webhooks/" + string(c.provider) + "/" + name
}

// do sends the request with basic auth and decodes a JSON body into out.
func (c *restClient) do(ctx context.Context, method, endpoint string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.provider, err)
	}
	req.SetBasicAuth(c.account, c.token)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", c.provider, err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Provider: c.provider, Status: resp.StatusCode}
		var payload struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Code, apiErr.Message = payload.Code, payload.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.provider, err)
	}
	return nil
}

type resourceSID struct {
	SID string `json:"sid"`
}

func (c *restClient) SendSMS(ctx context.Context, from, to, body string) (string, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)
	form.Set("StatusCallback", c.hookURL("status"))

	var res resourceSID
	if err := c.do(ctx, http.MethodPost, c.accountURL("Messages.json"), form, &res); err != nil {
		return "", err
	}
	return res.SID, nil
}

func (c *restClient) MakeCall(ctx context.Context, from, to, lamlURL string) (string, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Url", lamlURL)
	form.Set("StatusCallback", c.hookURL("voice-status"))

	var res resourceSID
	if err := c.do(ctx, http.MethodPost, c.accountURL("Calls.json"), form, &res); err != nil {
		return "", err
	}
	return res.SID, nil
}

func (c *restClient) LookupNumber(ctx context.Context, sid string) (*NumberInfo, error) {
	var res NumberInfo
	if err := c.do(ctx, http.MethodGet, c.accountURL("IncomingPhoneNumbers/"+url.PathEscape(sid)+".json"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *restClient) AvailableNumbers(ctx context.Context, areaCode string) ([]NumberInfo, error) {
	q := url.Values{}
	if areaCode != "" {
		q.Set("AreaCode", areaCode)
	}
	q.Set("SmsEnabled", "true")
	q.Set("VoiceEnabled", "true")
	q.Set("PageSize", availableLimit)

	var res struct {
		Numbers []NumberInfo `json:"available_phone_numbers"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountURL("AvailablePhoneNumbers/US/Local.json")+"?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	if res.Numbers == nil {
		res.Numbers = []NumberInfo{}
	}
	return res.Numbers, nil
}

func (c *restClient) PurchaseNumber(ctx context.Context, number string) (*NumberInfo, error) {
	form := url.Values{}
	form.Set("PhoneNumber", number)
	form.Set("SmsUrl", c.hookURL("sms"))
	form.Set("VoiceUrl", c.hookURL("voice"))

	var res NumberInfo
	if err := c.do(ctx, http.MethodPost, c.accountURL("IncomingPhoneNumbers.json"), form, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
