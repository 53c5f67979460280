// Package spec contains constants for the oosp measurement protocol.
package spec

import "time"

const (
	// UserAgent is the User-Agent header sent with every request.
	UserAgent = "hackster/1.0"

	// ProbeFile is the resource fetched during the download subtest. It lives
	// next to the server's upload URL.
	ProbeFile = "random4000x4000.jpg"

	// DefaultUploadSize is the default size of the upload payload, in bytes.
	DefaultUploadSize = 500000

	// FillerByte is the value every byte of the upload payload is set to.
	FillerByte = 'a'

	// SampleInterval is the minimum interval between two progress samples.
	// The final sample of a transfer is always emitted.
	SampleInterval = 500 * time.Millisecond

	// DefaultDirectoryURL is the well-known public server directory.
	DefaultDirectoryURL = "http://www.speedtest.net/speedtest-servers-static.php"

	// DefaultCacheName is the file name of the local directory cache, created
	// in the system's temporary directory.
	DefaultCacheName = "oosp-servers.xml"

	// DefaultCacheTTL is how long a cached directory is reused before being
	// fetched again.
	DefaultCacheTTL = time.Hour

	// DirectoryPath is the path the endpoint server publishes its directory on.
	DirectoryPath = "/speedtest-servers-static.php"

	// EndpointPrefix is the path prefix of the endpoint server's probe and
	// upload resources.
	EndpointPrefix = "/speedtest"

	// UploadFile is the name of the upload resource on the endpoint server.
	UploadFile = "upload.php"
)

// Direction indicates the subtest kind.
type Direction string

const (
	// DirectionDownload is a download subtest.
	DirectionDownload = Direction("download")

	// DirectionUpload is an upload subtest.
	DirectionUpload = Direction("upload")
)

// Label returns the short label used on progress lines.
func (d Direction) Label() string {
	if d == DirectionUpload {
		return "UL"
	}
	return "DL"
}
