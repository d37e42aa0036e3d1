package striperepo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Liliyakhu/library-service-project/util/httpx"
)

const apiBase = "https://api.stripe.com/v1"

// How far a webhook timestamp may drift before the signature is
// rejected as a possible replay.
const signatureTolerance = 5 * time.Minute

type httpRepo struct {
	apiKey        string
	webhookSecret string
	client        *http.Client
}

func NewHTTP(apiKey, webhookSecret string) Repo {
	return &httpRepo{apiKey: apiKey, webhookSecret: webhookSecret, client: httpx.Client()}
}

type sessionResp struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	ExpiresAt     int64  `json:"expires_at"`
}

func (sr sessionResp) toSession() *Session {
	return &Session{
		ID:            sr.ID,
		URL:           sr.URL,
		Status:        sr.Status,
		PaymentStatus: sr.PaymentStatus,
		ExpiresAt:     time.Unix(sr.ExpiresAt, 0),
	}
}

func (r *httpRepo) CreateSession(ctx context.Context, req CreateSessionReq) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][product_data][name]", req.ProductName)
	form.Set("line_items[0][price_data][product_data][description]", req.Description)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountCents, 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("expires_at", strconv.FormatInt(req.ExpiresAt.Unix(), 10))
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		apiBase+"/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe create session failed: %s", resp.Status)
	}

	var out sessionResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("stripe: empty session id")
	}
	return out.toSession(), nil
}

func (r *httpRepo) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		apiBase+"/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSessionNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe get session failed: %s", resp.Status)
	}

	var out sessionResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.toSession(), nil
}

// VerifyWebhookSignature implements Stripe's scheme: the header
// carries "t=<unix>,v1=<hex>" where v1 is HMAC-SHA256 of
// "<t>.<body>" under the endpoint secret.
func (r *httpRepo) VerifyWebhookSignature(sigHeader string, rawBody []byte, now time.Time) error {
	var ts string
	var sigs []string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return errors.New("stripe: malformed signature header")
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errors.New("stripe: bad signature timestamp")
	}
	age := now.Sub(time.Unix(tsUnix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return errors.New("stripe: signature timestamp out of tolerance")
	}

	mac := hmac.New(sha256.New, []byte(r.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, s := range sigs {
		if hmac.Equal([]byte(expected), []byte(s)) {
			return nil
		}
	}
	return errors.New("stripe: signature mismatch")
}
