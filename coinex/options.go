// Copyright (c) 2025 BVK Chaitanya

package coinex

import (
	"time"

	"github.com/bvk/fulfill/coinex/internal"
)

type Options struct {
	// BaseURL overrides the REST api endpoint.
	BaseURL string

	// Timeout to use for the HTTP requests.
	HttpClientTimeout time.Duration

	// RequestsPerSecond limits the rate of outgoing requests.
	RequestsPerSecond float64

	// RetryInterval is the wait before retrying throttled requests.
	RetryInterval time.Duration
}

func (v *Options) setDefaults() {
	if v.BaseURL == "" {
		v.BaseURL = internal.RestURL.String()
	}
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 5 * time.Second
	}
	if v.RequestsPerSecond == 0 {
		v.RequestsPerSecond = 10
	}
}

// Check validates the options.
func (v *Options) Check() error {
	return nil
}

func (v *Options) internal() *internal.Options {
	return &internal.Options{
		RestURL:           v.BaseURL,
		HttpClientTimeout: v.HttpClientTimeout,
		RequestsPerSecond: v.RequestsPerSecond,
		RetryInterval:     v.RetryInterval,
	}
}
