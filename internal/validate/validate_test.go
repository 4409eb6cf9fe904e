package validate_test

import (
	"testing"

	"kingoacquire/internal/validate"
)

func TestURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https URL", "https://indexer.example.com/download/1", false},
		{"valid http URL", "http://example.com", false},
		{"empty URL", "", true},
		{"no scheme", "example.com/download", true},
		{"ftp scheme rejected", "ftp://example.com", true},
		{"whitespace only", "   ", true},
		{"URL with spaces trimmed", "  https://example.com  ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validate.URL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("URL(%q) error = %v, wantErr = %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestPathComponent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal title", "The Name of the Wind", "The Name of the Wind"},
		{"empty becomes untitled", "", "untitled"},
		{"removes special chars", `Rothfuss, Patrick<>:"/\|?*`, "Rothfuss, Patrick"},
		{"collapses whitespace", "The   Name\tof the   Wind", "The Name of the Wind"},
		{"trims spaces and dots", "  The Wind.. ", "The Wind"},
		{"very long title truncated", string(make([]byte, 300)), string(make([]byte, 200))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validate.PathComponent(tt.input)
			if tt.name == "very long title truncated" {
				if len(result) > 200 {
					t.Errorf("PathComponent length = %d, want <= 200", len(result))
				}
				return
			}
			if result != tt.expected {
				t.Errorf("PathComponent(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPositiveInt(t *testing.T) {
	tests := []struct {
		name         string
		value        int
		defaultValue int
		expected     int
	}{
		{"negative uses default", -5, 10, 10},
		{"zero uses default", 0, 10, 10},
		{"positive uses value", 5, 10, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validate.PositiveInt(tt.value, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("PositiveInt(%d, %d) = %d, want %d", tt.value, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestDirectoryPath_RejectsTraversal(t *testing.T) {
	_, err := validate.DirectoryPath("/media/../../etc")
	if err == nil {
		t.Error("DirectoryPath should reject paths containing '..'")
	}
}

func TestDirectoryPath_AllowsMissingDir(t *testing.T) {
	dir := t.TempDir() + "/not-yet-created"
	got, err := validate.DirectoryPath(dir)
	if err != nil {
		t.Fatalf("DirectoryPath() error = %v, want nil for a not-yet-created dir", err)
	}
	if got == "" {
		t.Error("DirectoryPath should return the cleaned absolute path even when missing")
	}
}
