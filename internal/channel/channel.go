// Package channel resolves symbolic FXServer update channels to build numbers.
package channel

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Channel is a symbolic, non-pinned artifact update track.
type Channel string

const (
	Critical    Channel = "critical"
	Recommended Channel = "recommended"
	Optional    Channel = "optional"
	Latest      Channel = "latest"
	// LatestJg is served by the community index rather than the changelog feed.
	LatestJg Channel = "latest-jg"
)

// Default is used when a manifest names no channel.
const Default = LatestJg

// All returns every channel in display order.
func All() []Channel {
	return []Channel{Critical, Recommended, Optional, Latest, LatestJg}
}

// Parse validates s as a channel name.
func Parse(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("CHN_PARSE: unknown artifact channel %q (want critical, recommended, optional, latest, or latest-jg)", s)
	}
	return c, nil
}

// IsChannel reports whether s names a channel rather than a pinned build.
func IsChannel(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func (c Channel) Valid() bool {
	switch c {
	case Critical, Recommended, Optional, Latest, LatestJg:
		return true
	}
	return false
}

func (c Channel) String() string { return string(c) }

// Compare orders two build numbers. Builds that are not plain numbers sort
// before numeric ones.
func Compare(a, b string) int {
	return semver.Compare(buildSemver(a), buildSemver(b))
}

// Outdated reports whether installed is older than available.
func Outdated(installed, available string) bool {
	if installed == "" || available == "" {
		return false
	}
	return Compare(installed, available) < 0
}

func buildSemver(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	return "v" + v
}
