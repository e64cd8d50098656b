package dmart

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Config identifies a Dmart instance and the credentials used to log in to it
type Config struct {
	URL      string
	Username string
	Password string
}

// Validate checks that the configuration can be used for a login attempt
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return &ConfigError{Field: "url", Reason: "is required"}
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return &ConfigError{Field: "url", Reason: "is not a valid URL: " + err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Field: "url", Reason: "must use http or https"}
	}
	if u.Host == "" {
		return &ConfigError{Field: "url", Reason: "must include a host"}
	}

	if strings.TrimSpace(c.Username) == "" {
		return &ConfigError{Field: "username", Reason: "is required"}
	}
	if c.Password == "" {
		return &ConfigError{Field: "password", Reason: "is required"}
	}

	return nil
}

// MarshalZerologObject logs the instance and user. The password is never logged.
func (c Config) MarshalZerologObject(e *zerolog.Event) {
	e.Str("url", c.URL).Str("username", c.Username)
}

// String implements fmt.Stringer without exposing the password
func (c Config) String() string {
	return c.Username + "@" + c.URL
}

func (c Config) baseURL() string {
	return strings.TrimRight(c.URL, "/")
}
