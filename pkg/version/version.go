package version

// Version represents the current version of statsgrid
const Version = "0.4.0"

// BuildVersion returns the version string for display
func BuildVersion() string {
	return "statsgrid version " + Version
}

// APIVersion returns just the version number for API responses
func APIVersion() string {
	return Version
}

// UserAgent is sent by HTTP clients talking to remote datasources.
func UserAgent() string {
	return "statsgrid/" + Version
}
