package directory

import (
	"fmt"
	"strings"

	"github.com/m-lab/oosp/pkg/transfer/spec"
)

// DownloadURL returns the URL of the download probe for a server, given its
// upload URL: the last path segment is replaced with spec.ProbeFile.
func DownloadURL(uploadURL string) (string, error) {
	if uploadURL == "" {
		return "", fmt.Errorf("%w: empty url", ErrMalformedURL)
	}
	i := strings.LastIndex(uploadURL, "/")
	if i < 0 {
		return "", fmt.Errorf("%w: no '/' in %q", ErrMalformedURL, uploadURL)
	}
	return uploadURL[:i+1] + spec.ProbeFile, nil
}
