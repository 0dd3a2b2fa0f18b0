package cmp

import (
	"github.com/rs/zerolog"
)

// Option configures decoding, encoding and validation. Pass options to
// DecodeMessage, ParseMessage, Marshal and Validate.
type Option interface {
	apply(*config) error
}

// option is a concrete Option backed by a single function.
type option struct {
	f func(*config) error
}

func (o *option) apply(c *config) error {
	return o.f(c)
}

// config holds the accumulated settings of one call.
type config struct {
	policy   *Policy
	maxDepth int
	maxSize  int64
	ber      bool
	logger   zerolog.Logger
}

func newConfig(opts []Option) (*config, error) {
	c := &config{
		policy:   DefaultPolicy(),
		maxDepth: DefaultMaxNestingDepth,
		maxSize:  DefaultMaxMessageSize,
		logger:   zerolog.Nop(),
	}
	var errs []error
	for _, o := range opts {
		if o == nil {
			errs = append(errs, newConfigError("option is nil"))
			continue
		}
		if err := o.apply(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return c, nil
}

// reject logs a rejected message at debug level and returns err unchanged.
func (c *config) reject(op string, err error) error {
	if code, ok := CodeOf(err); ok {
		c.logger.Debug().Str("op", op).Stringer("code", code).Err(err).Msg("message rejected")
	} else {
		c.logger.Debug().Str("op", op).Err(err).Msg("message rejected")
	}
	return err
}

// WithPolicy selects the per-body-kind rule table applied by the validator.
// Defaults to DefaultPolicy.
func WithPolicy(p *Policy) Option {
	return &option{f: func(c *config) error {
		if p == nil {
			return newConfigError("policy is nil")
		}
		c.policy = p
		return nil
	}}
}

// WithMaxNestingDepth bounds how many nested bodies may enclose one another.
// A top-level message is at depth 0. Defaults to DefaultMaxNestingDepth.
func WithMaxNestingDepth(depth int) Option {
	return &option{f: func(c *config) error {
		if depth < 0 {
			return newConfigError("maximum nesting depth is negative")
		}
		c.maxDepth = depth
		return nil
	}}
}

// WithMaxMessageSize sets the maximum number of bytes ParseMessage and
// ParseMessages read. Defaults to DefaultMaxMessageSize (64 MiB). Pass
// UnlimitedMessageSize to disable the limit.
func WithMaxMessageSize(maxBytes int64) Option {
	return &option{f: func(c *config) error {
		if maxBytes <= 0 && maxBytes != UnlimitedMessageSize {
			return newConfigError("maximum message size must be positive or UnlimitedMessageSize")
		}
		c.maxSize = maxBytes
		return nil
	}}
}

// WithBERInput accepts BER input (indefinite lengths, constructed strings,
// non-minimal lengths) by converting it to DER before decoding. The converted
// DER is what the decoder and validator see. Has no effect on Marshal.
func WithBERInput() Option {
	return &option{f: func(c *config) error {
		c.ber = true
		return nil
	}}
}

// WithLogger sets a logger that receives a debug event for every rejected
// message. Defaults to a disabled logger.
func WithLogger(l zerolog.Logger) Option {
	return &option{f: func(c *config) error {
		c.logger = l
		return nil
	}}
}
