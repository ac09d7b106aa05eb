// Package version contains flytrap version information.
package version

import "fmt"

// Channel constants.
const (
	ChannelDevelopment = "development"
	ChannelEdge        = "edge"
	ChannelRelease     = "release"
)

// These are set by the linker.  Unfortunately we cannot set constants during
// linking, and Go doesn't have a concept of immutable variables, so to be
// thorough we have to only export them through getters.
var (
	channel string = ChannelDevelopment
	version string
)

// Channel returns the current flytrap release channel.
func Channel() (v string) {
	return channel
}

// Version returns the flytrap build version.
func Version() (v string) {
	return version
}

// Full returns the full current version of flytrap.
func Full() (v string) {
	return fmt.Sprintf("flytrap, version %s, channel %s", version, channel)
}
