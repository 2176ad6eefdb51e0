package version

// Current defines the application version.
// It defaults to "dev" but is overwritten at build time using -ldflags.
var Current = "dev"

// Commit is the git revision the binary was built from.
var Commit = "none"

const AppName = "Faultline"

// UserAgent is the product token sent to remote APIs.
func UserAgent() string {
	return "faultline/" + Current
}
