// Package validate sanitizes inputs that flow into the filesystem or into
// outbound HTTP calls: download URLs, directory paths, and path-template
// tokens rendered by organize_files.
package validate

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	apperr "kingoacquire/internal/errors"
)

// DangerousPathPatterns flag path traversal attempts in user-configured directories.
var DangerousPathPatterns = []string{"..", "~", "$", "%"}

// filenameUnsafeChars matches characters not allowed in path components,
// per organize_files's sanitization rule: strip <>:"/\|?*.
var filenameUnsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// URL validates an http(s) URL and returns the parsed form.
func URL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, apperr.NewWithMessage("validate.URL", apperr.KindTerminalRequest, apperr.ErrInvalidURL, "URL must not be empty")
	}

	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, apperr.NewWithMessage("validate.URL", apperr.KindTerminalRequest, apperr.ErrInvalidURL, "URL must start with http:// or https://")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperr.NewWithMessage("validate.URL", apperr.KindTerminalRequest, apperr.ErrInvalidURL, "malformed URL")
	}
	if parsed.Host == "" {
		return nil, apperr.NewWithMessage("validate.URL", apperr.KindTerminalRequest, apperr.ErrInvalidURL, "URL has no host")
	}

	return parsed, nil
}

// DirectoryPath validates a directory path, rejecting traversal patterns and
// returning the cleaned absolute path. The directory need not already exist.
func DirectoryPath(path string) (string, error) {
	if path == "" {
		return "", apperr.NewWithMessage("validate.DirectoryPath", apperr.KindTerminalConfig, apperr.ErrInvalidURL, "path must not be empty")
	}

	for _, pattern := range DangerousPathPatterns {
		if strings.Contains(path, pattern) {
			return "", apperr.NewWithMessage("validate.DirectoryPath", apperr.KindTerminalConfig, apperr.ErrPermissionDenied, "path contains disallowed characters")
		}
	}

	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", apperr.WrapAs("validate.DirectoryPath", apperr.KindTerminalConfig, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return absPath, nil
		}
		return "", apperr.WrapAs("validate.DirectoryPath", apperr.KindRetryableImport, err)
	}
	if !info.IsDir() {
		return "", apperr.NewWithMessage("validate.DirectoryPath", apperr.KindTerminalConfig, apperr.ErrInvalidURL, "path is not a directory")
	}

	return absPath, nil
}

// PathComponent sanitizes one path-template token: strips filesystem-unsafe
// characters, collapses whitespace, trims, and caps at 200 bytes.
func PathComponent(name string) string {
	if name == "" {
		return "untitled"
	}

	safe := strings.Join(strings.Fields(name), " ")
	safe = filenameUnsafeChars.ReplaceAllString(safe, "")
	safe = strings.Join(strings.Fields(safe), " ")
	safe = strings.Trim(safe, " .")

	if len(safe) > 200 {
		safe = safe[:200]
	}
	if safe == "" {
		return "untitled"
	}
	return safe
}

// Format validates a format string against an allowed set, defaulting to the
// first allowed entry when empty.
func Format(format string, allowedFormats []string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))

	if format == "" {
		return allowedFormats[0], nil
	}
	for _, allowed := range allowedFormats {
		if format == allowed {
			return format, nil
		}
	}
	return "", apperr.NewWithMessage("validate.Format", apperr.KindTerminalConfig, apperr.ErrInvalidURL,
		fmt.Sprintf("unsupported format: %s", format))
}

// PositiveInt ensures an integer is positive, returning a default if not.
func PositiveInt(value, defaultValue int) int {
	if value <= 0 {
		return defaultValue
	}
	return value
}

// NonEmptyString returns the string or a default if empty.
func NonEmptyString(value, defaultValue string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue
	}
	return value
}
