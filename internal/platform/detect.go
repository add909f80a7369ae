package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// HostInfo describes the machine dxm runs on.
type HostInfo struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Platform string `json:"platform,omitempty"`
	Family   string `json:"family,omitempty"`
	Version  string `json:"version,omitempty"`
	Target   string `json:"target"`
}

// Detect gathers host details. Distribution lookup failures fall back to
// GOOS/GOARCH only; a cancelled context is an error.
func Detect(ctx context.Context) (HostInfo, error) {
	info := HostInfo{
		OS:     runtime.GOOS,
		Arch:   runtime.GOARCH,
		Target: Default().String(),
	}
	name, family, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return HostInfo{}, fmt.Errorf("PLT_DETECT: %w", ctx.Err())
		}
		return info, nil
	}
	info.Platform = name
	info.Family = family
	info.Version = version
	return info, nil
}

// Supported reports whether FXServer ships builds for the host.
func (h HostInfo) Supported() bool {
	switch h.OS {
	case "windows":
		return h.Arch == "amd64"
	case "linux":
		return h.Arch == "amd64"
	}
	return false
}
