package utils

// Set via -ldflags at release build time.
var (
	// ClientVersion is the compiled companion-app version. Release records in
	// the remote store declare a minimum client version; eligibility is
	// evaluated against this constant.
	ClientVersion = "1.4.0"
	VersionHash   = "unknown"
)
