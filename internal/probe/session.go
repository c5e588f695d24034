package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/hamed0406/busmonitor/internal/domain"
)

const (
	araucaURL        = "https://service.expresobrasilia.com/BrasiliaServices"
	sessionLoginPath = "/login/authenticate"
	sessionTripsPath = "/tickets/getViajes"
	sessionCookie    = "JSESSIONID"
)

var sessionTripFields = []string{
	"codigoOrigen", "nombreOrigen", "codigoDestino", "nombreDestino",
	"fechaViaje", "lineas", "isConexion",
}

// SessionProbe authenticates with credentials in the query string and keeps
// the JSESSIONID cookie the login hands out alongside the bearer token.
type SessionProbe struct {
	base
	username string
	password string
}

func NewSessionProbe(o Options) *SessionProbe {
	return &SessionProbe{base: newBase(o, araucaURL), username: o.Username, password: o.Password}
}

func (p *SessionProbe) Check(ctx context.Context) Result {
	return guard(p.name, func() Result { return p.check(ctx) })
}

type session struct {
	token string
	id    string
}

func (p *SessionProbe) check(ctx context.Context) Result {
	secrets := []string{p.username, p.password}

	sess, req, resp, err := p.login(ctx)
	if err != nil {
		return failure(req, resp, secrets, err)
	}
	secrets = append(secrets, sess.token, sess.id)

	headers := map[string]string{"Authorization": "Bearer " + sess.token}
	if sess.id != "" {
		headers["Cookie"] = sessionCookie + "=" + sess.id
	}
	params := map[string]string{
		"codOrigen":  "BOG",
		"codDestino": "MDE",
		"fechaViaje": p.now().Format("02-01-2006"),
	}
	url := withQuery(p.baseURL+sessionTripsPath, params)
	req = domain.RequestSnapshot{URL: url, Method: http.MethodPost, Headers: headers, Params: params}

	ex, err := p.do(ctx, http.MethodPost, url, headers, nil)
	if err != nil {
		return failure(req, rawText(ex), secrets, err)
	}

	var data any
	if err := json.Unmarshal(ex.body, &data); err != nil {
		return failure(req, ex.text(), secrets, fmt.Errorf("%w: trips response: %v", ErrParse, err))
	}
	trips, ok := data.([]any)
	if !ok {
		return failure(req, data, secrets, fmt.Errorf("%w: invalid response structure: expected array, got %T", ErrSchema, data))
	}
	if len(trips) == 0 {
		return success(req, data, secrets)
	}
	first, ok := trips[0].(map[string]any)
	if !ok {
		return failure(req, data, secrets, fmt.Errorf("%w: trip entry is %T, expected object", ErrSchema, trips[0]))
	}
	if missing := missingFields(first, sessionTripFields); len(missing) > 0 {
		avail := make([]string, 0, len(first))
		for k := range first {
			avail = append(avail, k)
		}
		sort.Strings(avail)
		return failure(req, data, secrets, fmt.Errorf("%w: missing required fields %v, available %v", ErrSchema, missing, avail))
	}
	return success(req, data, secrets)
}

func (p *SessionProbe) login(ctx context.Context) (session, domain.RequestSnapshot, any, error) {
	params := map[string]string{"username": p.username, "password": p.password}
	url := withQuery(p.baseURL+sessionLoginPath, params)
	req := domain.RequestSnapshot{URL: url, Method: http.MethodPost, Headers: map[string]string{}, Params: params}

	ex, err := p.do(ctx, http.MethodPost, url, nil, nil)
	if err != nil {
		return session{}, req, rawText(ex), err
	}

	var sess session
	for _, line := range ex.header.Values("Set-Cookie") {
		if c, err := http.ParseSetCookie(line); err == nil && c.Name == sessionCookie {
			sess.id = c.Value
		}
	}

	var data any
	if err := json.Unmarshal(ex.body, &data); err != nil {
		// some deployments answer with the bare token as text
		text := ex.text()
		if len(text) > 10 {
			sess.token = text
			return sess, req, text, nil
		}
		return session{}, req, text, fmt.Errorf("%w: invalid token format in plain text response: %q", ErrAuth, text)
	}
	token, ok := extractToken(data)
	if !ok {
		return session{}, req, data, fmt.Errorf("%w: token not found in JSON response, structure: %s", ErrAuth, describeShape(data))
	}
	sess.token = token
	return sess, req, data, nil
}
