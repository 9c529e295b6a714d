// Package options defines the generic options interface and common utilities.
package options

import (
	"strings"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Join concatenates prefixes with "." separator.
// If the result is non-empty, it appends a trailing ".".
// This is used to build flag names like "http.middleware.cors.enabled".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions defines methods to implement a generic options.
type IOptions interface {
	// Validate validates all the required options.
	Validate() []error

	// AddFlags adds flags related to given flagset.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Completer is implemented by options that derive defaults after flags and
// config files have been applied.
type Completer interface {
	Complete() error
}

// CompleteAll runs Complete on every option that supports it and stops at
// the first failure.
func CompleteAll(opts ...any) error {
	for _, o := range opts {
		if c, ok := o.(Completer); ok {
			if err := c.Complete(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateAll validates every option and aggregates the errors.
func ValidateAll(opts ...IOptions) error {
	var errs []error
	for _, o := range opts {
		errs = append(errs, o.Validate()...)
	}
	return utilerrors.NewAggregate(errs)
}
