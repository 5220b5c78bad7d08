package version

import "fmt"

// Set with -ldflags "-X cwinsights/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

const Name = "cwinsights"

func String() string {
	base := Name + " " + Version
	if Commit != "" {
		base += fmt.Sprintf(" (%s)", Commit)
	}
	if Date != "" {
		base += fmt.Sprintf(" built %s", Date)
	}
	return base
}

// AppID is appended to the AWS SDK user agent.
func AppID() string {
	return Name + "-" + Version
}
