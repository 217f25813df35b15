package verda

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is the current SDK version.
//
// This version follows semantic versioning (https://semver.org/) and is
// embedded in the User-Agent of every API request.
const Version = "1.0.0"

// APIVersion is the Verda API version this SDK was built for.
//
// The API version is carried in the base URL path (for example
// "https://api.verda.com/v1").
const APIVersion = "1.0.0"

// APIVersionRange is the semver constraint of API versions this SDK supports.
const APIVersionRange = ">=1.0.0, <2.0.0"

// CompatibilityStatus represents the result of a version compatibility check.
type CompatibilityStatus int

const (
	// Unknown means the version could not be parsed.
	Unknown CompatibilityStatus = iota

	// Compatible means the version satisfies [APIVersionRange].
	Compatible

	// Incompatible means the version is outside [APIVersionRange].
	Incompatible
)

// String returns the lowercase name of the status.
func (s CompatibilityStatus) String() string {
	switch s {
	case Compatible:
		return "compatible"
	case Incompatible:
		return "incompatible"
	default:
		return "unknown"
	}
}

// CompatibilityResult describes how an API version relates to this SDK.
type CompatibilityResult struct {
	Status           CompatibilityStatus
	ServerVersion    string
	SDKVersion       string
	TargetAPIVersion string
	SupportedRange   string
	Message          string
}

// IsCompatible returns true if Status is [Compatible].
func (r *CompatibilityResult) IsCompatible() bool {
	return r.Status == Compatible
}

// CheckCompatibility checks an API version against [APIVersionRange].
//
// Short forms such as "v1" or "1.2" are accepted and coerced to full
// semantic versions.
//
//	result := verda.CheckCompatibility("v1")
//	if !result.IsCompatible() {
//	    log.Println(result.Message)
//	}
func CheckCompatibility(version string) *CompatibilityResult {
	result := &CompatibilityResult{
		ServerVersion:    version,
		SDKVersion:       Version,
		TargetAPIVersion: APIVersion,
		SupportedRange:   APIVersionRange,
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		result.Status = Unknown
		result.Message = fmt.Sprintf("cannot parse API version %q: %v", version, err)
		return result
	}

	constraint, err := semver.NewConstraint(APIVersionRange)
	if err != nil {
		result.Status = Unknown
		result.Message = fmt.Sprintf("invalid supported range %q: %v", APIVersionRange, err)
		return result
	}

	// Prerelease versions never satisfy a plain range, so compare the release part.
	release, _ := v.SetPrerelease("")
	if constraint.Check(&release) {
		result.Status = Compatible
		result.Message = fmt.Sprintf("API version %s is compatible with SDK %s", version, Version)
		return result
	}

	result.Status = Incompatible
	result.Message = fmt.Sprintf("API version %s is not compatible with SDK %s (supported: %s)",
		version, Version, APIVersionRange)
	return result
}

// IsCompatible reports whether version satisfies [APIVersionRange].
func IsCompatible(version string) bool {
	return CheckCompatibility(version).IsCompatible()
}

// MustBeCompatible panics if version is not compatible with this SDK.
func MustBeCompatible(version string) {
	if result := CheckCompatibility(version); !result.IsCompatible() {
		panic(result.Message)
	}
}

// apiVersionFromBaseURL extracts the "vN" segment of a base URL path.
// Returns "" when the path carries no version segment.
func apiVersionFromBaseURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if len(seg) > 1 && seg[0] == 'v' && seg[1] >= '0' && seg[1] <= '9' {
			return seg
		}
	}
	return ""
}
