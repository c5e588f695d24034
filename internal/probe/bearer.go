package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hamed0406/busmonitor/internal/domain"
)

const (
	bolivarianoURL     = "https://apis.bolivariano.com.co"
	bearerLoginPath    = "/authentication/v1/Authentication/UserLogin"
	bearerTripsPath    = "/weballiates/V1/Sales/GetAvailableTripsRoundTrip"
	bearerClientHeader = `{"ClientIP":"54.203.172.96", "ClientInfo":"pinbus"}`
)

// BearerProbe logs in with a JSON body, then queries trips with a bearer token.
type BearerProbe struct {
	base
	username string
	password string
}

func NewBearerProbe(o Options) *BearerProbe {
	return &BearerProbe{base: newBase(o, bolivarianoURL), username: o.Username, password: o.Password}
}

func (p *BearerProbe) Check(ctx context.Context) Result {
	return guard(p.name, func() Result { return p.check(ctx) })
}

func (p *BearerProbe) check(ctx context.Context) Result {
	secrets := []string{p.username, p.password}

	token, req, resp, err := p.login(ctx)
	if err != nil {
		return failure(req, resp, secrets, err)
	}
	secrets = append(secrets, token)

	date := p.now().Format("2006-01-02")
	headers := map[string]string{
		"Authorization":      "Bearer " + token,
		"Content-Type":       "application/json",
		"Client-Header-Info": bearerClientHeader,
	}
	payload := map[string]any{
		"originAgencyId":          "1",
		"destinationAgencyId":     "5",
		"outboundTripDate":        date + "T00:00:00Z",
		"outboundTotalPassengers": 1,
		"outboundTimeOfDay":       0,
		"returnTripDate":          nil,
		"returnTotalPassengers":   0,
		"returnTimeOfDay":         0,
	}
	url := p.baseURL + bearerTripsPath
	req = domain.RequestSnapshot{URL: url, Method: http.MethodPost, Headers: headers, Body: payload}

	body, _ := json.Marshal(payload)
	ex, err := p.do(ctx, http.MethodPost, url, headers, body)
	if err != nil {
		return failure(req, rawText(ex), secrets, err)
	}

	var data any
	if err := json.Unmarshal(ex.body, &data); err != nil {
		return failure(req, ex.text(), secrets, fmt.Errorf("%w: trips response: %v", ErrParse, err))
	}
	m, ok := data.(map[string]any)
	if !ok {
		return failure(req, data, secrets, fmt.Errorf("%w: invalid response structure: expected object, got %T", ErrSchema, data))
	}
	if _, ok := m["statusCode"]; !ok {
		return failure(req, data, secrets, fmt.Errorf("%w: invalid response structure: missing statusCode", ErrSchema))
	}
	inner, ok := m["data"].(map[string]any)
	if !ok {
		return failure(req, data, secrets, fmt.Errorf("%w: invalid response structure: missing data object", ErrSchema))
	}
	if _, ok := inner["outboundTrips"]; !ok {
		return failure(req, data, secrets, fmt.Errorf("%w: invalid response structure: missing data.outboundTrips", ErrSchema))
	}
	// an empty outboundTrips list is a valid "no availability" answer
	return success(req, data, secrets)
}

func (p *BearerProbe) login(ctx context.Context) (string, domain.RequestSnapshot, any, error) {
	url := p.baseURL + bearerLoginPath
	headers := map[string]string{"Content-Type": "application/json"}
	payload := map[string]any{"userName": p.username, "password": p.password}
	req := domain.RequestSnapshot{URL: url, Method: http.MethodPost, Headers: headers, Body: payload}

	body, _ := json.Marshal(payload)
	ex, err := p.do(ctx, http.MethodPost, url, headers, body)
	if err != nil {
		return "", req, rawText(ex), err
	}
	var data any
	if err := json.Unmarshal(ex.body, &data); err != nil {
		return "", req, ex.text(), fmt.Errorf("%w: login response: %v", ErrParse, err)
	}
	token, ok := extractToken(data)
	if !ok {
		return "", req, data, fmt.Errorf("%w: token not found in response, structure: %s", ErrAuth, describeShape(data))
	}
	return token, req, data, nil
}

// rawText is the response snapshot for a failed exchange; nil means no response.
func rawText(ex *exchange) any {
	if ex == nil {
		return ""
	}
	return ex.text()
}
