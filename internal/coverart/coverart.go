// Package coverart downloads a cover image to a local path, the one
// networked step organize_files needs when a release has no cover art
// already sitting in the download directory.
package coverart

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	apperr "kingoacquire/internal/errors"
)

const maxImageSize = 50 * 1024 * 1024 // 50MB

// Client downloads cover art over plain HTTP(S).
type Client struct {
	httpClient *http.Client
}

// NewClient builds a Client with the given per-call timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Download fetches urlStr and writes it to destPath, validating that the
// response is actually image content before trusting it. Any error leaves
// destPath untouched (no partial file).
func (c *Client) Download(urlStr, destPath string) error {
	req, err := http.NewRequest(http.MethodGet, urlStr, nil)
	if err != nil {
		return apperr.WrapAs("coverart.Download", apperr.KindRetryableImport, err)
	}
	req.Header.Set("User-Agent", "kingoacquire/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.WrapAs("coverart.Download", apperr.KindRetryableTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.NewWithMessage("coverart.Download", apperr.KindRetryableImport, apperr.ErrDownloadFailed,
			fmt.Sprintf("cover art request returned status %d", resp.StatusCode))
	}

	if resp.ContentLength > maxImageSize {
		return apperr.NewWithMessage("coverart.Download", apperr.KindRetryableImport, apperr.ErrDownloadFailed,
			fmt.Sprintf("cover art too large: %d bytes", resp.ContentLength))
	}

	limited := io.LimitReader(resp.Body, maxImageSize)

	sniff := make([]byte, 512)
	n, err := io.ReadFull(limited, sniff)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return apperr.WrapAs("coverart.Download", apperr.KindRetryableImport, err)
	}
	sniff = sniff[:n]

	detected := http.DetectContentType(sniff)
	if !strings.HasPrefix(detected, "image/") && detected != "application/octet-stream" {
		return apperr.NewWithMessage("coverart.Download", apperr.KindRetryableImport, apperr.ErrDownloadFailed,
			fmt.Sprintf("response does not look like an image: %s", detected))
	}

	out, err := os.Create(destPath)
	if err != nil {
		return apperr.WrapAs("coverart.Download", apperr.KindRetryableImport, err)
	}
	defer out.Close()

	if _, err := out.Write(sniff); err != nil {
		os.Remove(destPath)
		return apperr.WrapAs("coverart.Download", apperr.KindRetryableImport, err)
	}
	if _, err := io.Copy(out, limited); err != nil {
		os.Remove(destPath)
		return apperr.WrapAs("coverart.Download", apperr.KindRetryableImport, err)
	}

	return nil
}
