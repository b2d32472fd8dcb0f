package sauce

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
)

// Environment variables holding Sauce Labs credentials.
const (
	EnvUsername  = "SAUCE_USERNAME"
	EnvAccessKey = "SAUCE_ACCESS_KEY"
	EnvRegion    = "SAUCE_REGION"
)

// DefaultRegion is the data center the hub URL points at.
const DefaultRegion = "us-west-1"

var regionPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Credentials authenticate against the hub.
type Credentials struct {
	Username  string
	AccessKey string
}

// CredentialsFromEnv reads SAUCE_USERNAME and SAUCE_ACCESS_KEY.
func CredentialsFromEnv() Credentials {
	return Credentials{
		Username:  os.Getenv(EnvUsername),
		AccessKey: os.Getenv(EnvAccessKey),
	}
}

// Validate requires both fields.
func (c Credentials) Validate() error {
	var missing []string
	if c.Username == "" {
		missing = append(missing, EnvUsername)
	}
	if c.AccessKey == "" {
		missing = append(missing, EnvAccessKey)
	}
	if len(missing) > 0 {
		return core.ErrMissingRequired.WithMessage("missing credentials: " + strings.Join(missing, ", "))
	}
	return nil
}

// HubURL builds https://<user>:<key>@ondemand.<region>.saucelabs.com/wd/hub.
// endpoint, when set, replaces the Sauce Labs host (self-hosted Appium,
// tunnels, tests); credentials are injected unless it already carries some.
func HubURL(creds Credentials, region, endpoint string) (string, error) {
	if endpoint != "" {
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", core.ErrMalformedURL.WithMessage(fmt.Sprintf("malformed hub URL %q", endpoint)).WithCause(err)
		}
		if u.User == nil && creds.Username != "" {
			u.User = url.UserPassword(creds.Username, creds.AccessKey)
		}
		return u.String(), nil
	}

	if err := creds.Validate(); err != nil {
		return "", err
	}
	if region == "" {
		region = DefaultRegion
	}
	if !regionPattern.MatchString(region) {
		return "", core.ErrMalformedURL.WithMessage(fmt.Sprintf("invalid region %q", region))
	}

	u := url.URL{
		Scheme: "https",
		User:   url.UserPassword(creds.Username, creds.AccessKey),
		Host:   "ondemand." + region + ".saucelabs.com",
		Path:   "/wd/hub",
	}
	return u.String(), nil
}
