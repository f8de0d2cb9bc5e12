package policy

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// AccessMode selects whether DeviceAccess's pattern list allows or
// denies the devices it matches.
type AccessMode int

const (
	// ModeAllow denies any DRF whose device name matches none of the
	// configured patterns.
	ModeAllow AccessMode = iota
	// ModeDeny denies any DRF whose device name matches any configured
	// pattern.
	ModeDeny
)

// DeviceAccess allows or denies requests based on case-insensitive
// glob patterns matched against each DRF's device-name prefix. The
// first offending device is named in the denial reason.
type DeviceAccess struct {
	mode     AccessMode
	globs    []glob.Glob
	patterns []string
}

// NewDeviceAccess compiles patterns (fnmatch-style globs, e.g. "M:*",
// "G:AMANDA") for the given mode. Panics on an empty pattern list or
// an unparseable pattern — both are construction-time programming
// errors, matching the teacher's fail-fast config validation idiom.
func NewDeviceAccess(patterns []string, mode AccessMode) *DeviceAccess {
	if len(patterns) == 0 {
		panic("policy: DeviceAccess patterns must not be empty")
	}
	compiled := make([]glob.Glob, len(patterns))
	for i, p := range patterns {
		g, err := glob.Compile(strings.ToUpper(p))
		if err != nil {
			panic(fmt.Sprintf("policy: invalid device pattern %q: %v", p, err))
		}
		compiled[i] = g
	}
	return &DeviceAccess{mode: mode, globs: compiled, patterns: patterns}
}

func (d *DeviceAccess) matches(deviceName string) bool {
	upper := strings.ToUpper(deviceName)
	for _, g := range d.globs {
		if g.Match(upper) {
			return true
		}
	}
	return false
}

func (d *DeviceAccess) Check(ctx RequestContext) Decision {
	for _, drfStr := range ctx.Drfs {
		name := deviceName(drfStr)
		matched := d.matches(name)
		switch d.mode {
		case ModeAllow:
			if !matched {
				return Deny(fmt.Sprintf("Device %s not in allow list", name))
			}
		case ModeDeny:
			if matched {
				return Deny(fmt.Sprintf("Device %s is denied", name))
			}
		}
	}
	return Allow
}
