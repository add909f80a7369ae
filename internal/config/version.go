package config

// Build information, stamped with -ldflags "-X dxm/internal/config.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent is sent with every outgoing HTTP request.
func UserAgent() string {
	return "dxm/" + Version
}
