package client

import (
	"errors"
	"time"
)

// Options configure how the control surface is reached.
type Options struct {
	// InsecureTLS skips certificate verification, for workers reached
	// through a proxy with a self-signed certificate.
	InsecureTLS bool
	APIKey      string
	Timeout     time.Duration
}

type Option func(*Options) error

func IgnoreTLSCert() Option {
	return func(o *Options) error {
		o.InsecureTLS = true
		return nil
	}
}

// APIKey sets the key sent as a bearer token on every request.
func APIKey(key string) Option {
	return func(o *Options) error {
		o.APIKey = key
		return nil
	}
}

// Timeout bounds every request, including reading the body.
func Timeout(timeout time.Duration) Option {
	return func(o *Options) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		o.Timeout = timeout
		return nil
	}
}

func NewOptions(opts ...Option) (*Options, error) {
	o := &Options{
		Timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
