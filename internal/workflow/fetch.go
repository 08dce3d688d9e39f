package workflow

import (
	"bytes"
	"context"
	"io"
)

// SampleDownloader retrieves samples by hash from a secondary source.
// *enrichment.VirusTotalClient implements it.
type SampleDownloader interface {
	DownloadFile(ctx context.Context, hash string, w io.Writer) error
	Close() error
}

// FetchSample downloads the sample identified by hash. The downloader is
// closed before returning, whatever the outcome.
func FetchSample(ctx context.Context, d SampleDownloader, hash string) (data []byte, err error) {
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = newError(ErrProcessing, cerr)
		}
	}()

	var buf bytes.Buffer
	if err := d.DownloadFile(ctx, hash, &buf); err != nil {
		return nil, newError(ErrProcessing, err)
	}
	return buf.Bytes(), nil
}
