package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hamed0406/busmonitor/internal/domain"
)

// Result is the normalized outcome of one Check.
//
// Error is set iff Status is StatusError. Secrets lists credentials obtained
// during the check (tokens, session ids) so they can be scrubbed before the
// request snapshot is stored.
type Result struct {
	Status   domain.Status
	Request  domain.RequestSnapshot
	Response any
	Error    string
	Err      error
	Secrets  []string
}

// Prober runs one vendor auth+query protocol. Check never panics and never
// reports failure other than through the returned Result.
type Prober interface {
	Name() string
	Check(ctx context.Context) Result
}

// Options configures any probe variant. Fields a variant does not use are ignored.
type Options struct {
	Name       string
	BaseURL    string
	Username   string
	Password   string
	Key        string
	ConsumerID string
	Timeout    time.Duration
	Client     *http.Client
	Now        func() time.Time
}

func success(req domain.RequestSnapshot, resp any, secrets []string) Result {
	return Result{Status: domain.StatusSuccess, Request: req, Response: resp, Secrets: secrets}
}

func failure(req domain.RequestSnapshot, resp any, secrets []string, err error) Result {
	return Result{
		Status:   domain.StatusError,
		Request:  req,
		Response: resp,
		Error:    err.Error(),
		Err:      err,
		Secrets:  secrets,
	}
}

// guard turns a panic inside fn into an error Result.
func guard(name string, fn func() Result) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("probe %s panicked: %v", name, r)
			res = Result{Status: domain.StatusError, Error: err.Error(), Err: err}
		}
	}()
	res = fn()
	if res.Status != domain.StatusSuccess && res.Status != domain.StatusError {
		res.Status = domain.StatusError
		if res.Error == "" {
			res.Error = "probe returned no status"
		}
	}
	return res
}
