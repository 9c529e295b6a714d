package app

import (
	"github.com/spf13/pflag"
)

// NamedFlagSets stores named flag sets in the order they were requested, so
// help output groups flags by concern.
type NamedFlagSets struct {
	// Order is an ordered list of flag set names.
	Order []string
	// FlagSets stores the flag sets by name.
	FlagSets map[string]*pflag.FlagSet
}

// FlagSet returns the flag set with the given name and adds it to the
// ordered name list if it is not in there yet.
func (nfs *NamedFlagSets) FlagSet(name string) *pflag.FlagSet {
	if nfs.FlagSets == nil {
		nfs.FlagSets = map[string]*pflag.FlagSet{}
	}
	if _, ok := nfs.FlagSets[name]; !ok {
		nfs.FlagSets[name] = pflag.NewFlagSet(name, pflag.ExitOnError)
		nfs.Order = append(nfs.Order, name)
	}
	return nfs.FlagSets[name]
}

// CliOptions is implemented by the options of an App.
type CliOptions interface {
	// Flags returns the options' flags grouped by section.
	Flags() NamedFlagSets
	// Complete fills defaults derived from other fields or the environment.
	Complete() error
	// Validate validates the options.
	Validate() error
}
