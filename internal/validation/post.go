// Package validation checks post fields against LinkedIn's publishing rules.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxContentLength is LinkedIn's limit for a share's commentary, hashtags included.
const MaxContentLength = 3000

var hashtagRegex = regexp.MustCompile(`^#?[\p{L}\p{N}_]{1,100}$`)

// ValidateContent checks the text that will be published, after hashtags are appended.
func ValidateContent(composed string) error {
	if strings.TrimSpace(composed) == "" {
		return fmt.Errorf("content must not be empty")
	}
	if n := utf8.RuneCountInString(composed); n > MaxContentLength {
		return fmt.Errorf("content is %d characters; LinkedIn allows at most %d", n, MaxContentLength)
	}
	return nil
}

// ValidateHashtag accepts a single tag with or without its leading '#'.
func ValidateHashtag(tag string) error {
	if !hashtagRegex.MatchString(strings.TrimSpace(tag)) {
		return fmt.Errorf("hashtag %q may only contain letters, digits and underscores", tag)
	}
	return nil
}

// ValidateMediaURL requires an absolute http(s) URL; an empty value means no media.
func ValidateMediaURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("media_url %q is not an absolute URL", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("media_url must use http or https")
	}
	return nil
}

// ValidatePost runs every field check and returns the first failure.
func ValidatePost(composed string, hashtags []string, mediaURL string) error {
	if err := ValidateContent(composed); err != nil {
		return err
	}
	for _, tag := range hashtags {
		if err := ValidateHashtag(tag); err != nil {
			return err
		}
	}
	return ValidateMediaURL(mediaURL)
}
