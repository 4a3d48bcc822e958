// Package version checks GitHub releases for a newer formsync and compares
// semantic versions.
package version

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ReleaseURL is the GitHub endpoint for the latest release.
var ReleaseURL = "https://api.github.com/repos/marcus/formsync/releases/latest"

// CheckResult holds the result of a version check.
type CheckResult struct {
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version,omitempty"`
	UpdateURL      string `json:"update_url,omitempty"`
	HasUpdate      bool   `json:"has_update"`
}

// Check fetches the latest release and compares it with currentVersion.
// Development builds are never reported as outdated.
func Check(currentVersion string) (CheckResult, error) {
	result := CheckResult{CurrentVersion: currentVersion}
	if IsDevelopmentVersion(currentVersion) {
		return result, nil
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(ReleaseURL)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("github api: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, err
	}

	tag := gjson.GetBytes(body, "tag_name").String()
	if tag == "" {
		return result, fmt.Errorf("github api: release has no tag")
	}
	result.LatestVersion = tag
	result.UpdateURL = gjson.GetBytes(body, "html_url").String()
	result.HasUpdate = IsNewer(tag, currentVersion)
	return result, nil
}

// IsDevelopmentVersion returns true for non-release versions.
func IsDevelopmentVersion(v string) bool {
	switch v {
	case "", "unknown", "dev", "devel":
		return true
	}
	return strings.HasPrefix(v, "devel+")
}

var validVersionRegex = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9]+([.-][a-zA-Z0-9]+)*)?$`)

// UpdateCommand generates the go install command for updating.
// Returns empty string if version is invalid (prevents shell injection).
func UpdateCommand(version string) string {
	if !validVersionRegex.MatchString(version) {
		return ""
	}
	return fmt.Sprintf(
		"go install -ldflags \"-X main.Version=%s\" github.com/marcus/formsync@%s",
		version, version,
	)
}

type semver struct {
	major, minor, patch int
	pre                 string
}

func parseSemver(v string) (semver, bool) {
	if !validVersionRegex.MatchString(v) {
		return semver{}, false
	}
	v = strings.TrimPrefix(v, "v")
	var s semver
	if i := strings.IndexByte(v, '-'); i >= 0 {
		s.pre = v[i+1:]
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	s.major, _ = strconv.Atoi(parts[0])
	s.minor, _ = strconv.Atoi(parts[1])
	s.patch, _ = strconv.Atoi(parts[2])
	return s, true
}

// IsNewer reports whether latest is a higher version than current. A
// release outranks a prerelease of the same number. Unparseable versions
// are never newer.
func IsNewer(latest, current string) bool {
	l, ok := parseSemver(latest)
	if !ok {
		return false
	}
	c, ok := parseSemver(current)
	if !ok {
		return false
	}
	if l.major != c.major {
		return l.major > c.major
	}
	if l.minor != c.minor {
		return l.minor > c.minor
	}
	if l.patch != c.patch {
		return l.patch > c.patch
	}
	switch {
	case l.pre == c.pre:
		return false
	case l.pre == "":
		return true
	case c.pre == "":
		return false
	}
	return l.pre > c.pre
}
