// Package profiles lists the named credential profiles found in the shared
// AWS credentials and config files. Only section names are read; the
// profile itself is resolved by the SDK when a query is submitted.
package profiles

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"cwinsights/internal/util/logx"
)

type source struct {
	path   string
	config bool // [profile name] sections, as in ~/.aws/config
}

func sources() []source {
	var out []source
	home, _ := os.UserHomeDir()
	if p := strings.TrimSpace(os.Getenv("AWS_SHARED_CREDENTIALS_FILE")); p != "" {
		out = append(out, source{path: p})
	}
	if home != "" {
		out = append(out, source{path: filepath.Join(home, ".aws", "credentials")})
	}
	if p := strings.TrimSpace(os.Getenv("AWS_CONFIG_FILE")); p != "" {
		out = append(out, source{path: p, config: true})
	}
	if home != "" {
		out = append(out, source{path: filepath.Join(home, ".aws", "config"), config: true})
	}
	return out
}

// Discover returns profile names in first-seen order, credentials files
// first. Missing or unreadable files are skipped.
func Discover() []string {
	var names []string
	seen := map[string]bool{}
	for _, src := range sources() {
		found, err := readFile(src)
		if err != nil {
			if !os.IsNotExist(err) {
				logx.Warnf("profiles: read %s: %v", src.path, err)
			}
			continue
		}
		for _, n := range found {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	logx.Debugf("profiles: discovered %d", len(names))
	return names
}

func readFile(src source) ([]string, error) {
	f, err := os.Open(src.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if n, ok := sectionName(sc.Text(), src.config); ok {
			out = append(out, n)
		}
	}
	return out, sc.Err()
}

// sectionName extracts the profile name from a "[name]" line. Config files
// name profiles "[profile name]", except for "[default]".
func sectionName(line string, config bool) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "["), "]"))
	if name == "" {
		return "", false
	}
	if !config {
		return name, true
	}
	if strings.EqualFold(name, "default") {
		return "default", true
	}
	rest, ok := strings.CutPrefix(name, "profile")
	if !ok || rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

// Default picks the profile to start with: AWS_PROFILE when it is one of
// names, then "default", then the first name. It returns "" for no names.
func Default(names []string) string {
	has := func(n string) bool {
		for _, x := range names {
			if x == n {
				return true
			}
		}
		return false
	}
	if env := strings.TrimSpace(os.Getenv("AWS_PROFILE")); env != "" && has(env) {
		return env
	}
	if has("default") {
		return "default"
	}
	if len(names) > 0 {
		return names[0]
	}
	return ""
}
