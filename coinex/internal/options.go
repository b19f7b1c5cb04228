// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"fmt"
	"net/url"
	"time"
)

var RestURL = url.URL{
	Scheme: "https",
	Host:   "api.coinex.com",
	Path:   "/v2",
}

type Options struct {
	// RestURL is the base url for the REST api.
	RestURL string

	// Timeout to use for the HTTP requests.
	HttpClientTimeout time.Duration

	// RequestsPerSecond limits the rate of outgoing requests.
	RequestsPerSecond float64

	// MaxRetries limits the retries of throttled or bad-gateway requests.
	MaxRetries int

	// RetryInterval is the wait before retrying a bad-gateway response and a
	// throttled response without a Retry-After header.
	RetryInterval time.Duration
}

func (v *Options) setDefaults() {
	if v.RestURL == "" {
		v.RestURL = RestURL.String()
	}
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 5 * time.Second
	}
	if v.RequestsPerSecond == 0 {
		v.RequestsPerSecond = 10
	}
	if v.MaxRetries == 0 {
		v.MaxRetries = 5
	}
	if v.RetryInterval == 0 {
		v.RetryInterval = time.Second
	}
}

// Check validates the options.
func (v *Options) Check() error {
	if _, err := url.Parse(v.RestURL); err != nil {
		return fmt.Errorf("invalid rest url %q: %w", v.RestURL, err)
	}
	if v.RequestsPerSecond < 0 || v.MaxRetries < 0 {
		return fmt.Errorf("request rate and retries cannot be negative")
	}
	return nil
}
