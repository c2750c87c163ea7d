package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/scriptducks/hashes-gui/internal/buildinfo"
	"github.com/scriptducks/hashes-gui/internal/domain"
)

// DownloadProgress is reported while a left list is streamed.
type DownloadProgress struct {
	Index      int              `json:"index"` // 1-based position of Job in the selection
	Total      int              `json:"total"`
	Downloaded int64            `json:"downloaded"`
	Size       int64            `json:"size"` // Content-Length, 0 when unknown
	Job        domain.EscrowJob `json:"-"`
}

type DownloadFailure struct {
	JobID string `json:"jobId"`
	Error string `json:"error"`
}

type DownloadReport struct {
	Destination  string            `json:"destination"`
	BytesWritten int64             `json:"bytesWritten"`
	Succeeded    int               `json:"succeeded"`
	Failed       []DownloadFailure `json:"failed"`
}

// DownloadLeftLists merges the left lists of jobs into destination. The first
// successful download truncates the file, later ones append. A failing job is
// recorded in the report and the next one is tried; only an empty selection
// or a canceled context return an error. Bytes of a job that fails mid-stream
// are cut from the file, so it only ever holds complete left lists.
func (c *HashesClient) DownloadLeftLists(ctx context.Context, jobs []domain.EscrowJob, destination string, onProgress func(DownloadProgress)) (DownloadReport, error) {
	report := DownloadReport{Destination: destination, Failed: []DownloadFailure{}}
	if len(jobs) == 0 {
		return report, ErrNoJobsSelected
	}

	appendMode := false
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := strings.TrimSpace(job.LeftList.String())
		if path == "" {
			report.Failed = append(report.Failed, DownloadFailure{JobID: job.ID.String(), Error: "no left list URL"})
			continue
		}
		c.pacer.Take()

		progress := func(done, size int64) {
			if onProgress != nil {
				onProgress(DownloadProgress{Index: i + 1, Total: len(jobs), Downloaded: done, Size: size, Job: job})
			}
		}
		n, err := c.streamLeftList(ctx, path, destination, appendMode, progress)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed = append(report.Failed, DownloadFailure{JobID: job.ID.String(), Error: err.Error()})
			continue
		}
		report.BytesWritten += n
		report.Succeeded++
		appendMode = true
	}
	return report, nil
}

func (c *HashesClient) streamLeftList(ctx context.Context, path, destination string, appendMode bool, progress func(done, size int64)) (int64, error) {
	u := c.downloadURL + path
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u = path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, &APIError{Message: fmt.Sprintf("failed downloading %q", path), Err: err}
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	// keep Content-Length meaningful for progress
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &APIError{Message: fmt.Sprintf("failed downloading %q", path), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, &APIError{Message: fmt.Sprintf("failed downloading %q: %s", path, resp.Status)}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	out, err := os.OpenFile(destination, flags, 0o644)
	if err != nil {
		return 0, &APIError{Message: fmt.Sprintf("failed writing file %q", destination), Err: err}
	}
	var start int64
	if appendMode {
		st, err := out.Stat()
		if err != nil {
			_ = out.Close()
			return 0, &APIError{Message: fmt.Sprintf("failed writing file %q", destination), Err: err}
		}
		start = st.Size()
	}
	abort := func(err error) (int64, error) {
		if terr := out.Truncate(start); terr != nil {
			err = &APIError{Message: fmt.Sprintf("failed writing file %q", destination), Err: terr}
		}
		_ = out.Close()
		return 0, err
	}

	size := resp.ContentLength
	if size < 0 {
		size = 0
	}
	var written int64
	buf := make([]byte, 8192)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return abort(&APIError{Message: fmt.Sprintf("failed writing file %q", destination), Err: werr})
			}
			written += int64(n)
			progress(written, size)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return abort(&APIError{Message: fmt.Sprintf("failed downloading %q", path), Err: rerr})
		}
	}
	if err := out.Close(); err != nil {
		return written, &APIError{Message: fmt.Sprintf("failed writing file %q", destination), Err: err}
	}
	return written, nil
}
