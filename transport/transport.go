// Package transport implements the HTTP client against a fileshare remote:
// fetching the remote tree, uploading and downloading file bodies in
// chunks, deleting files, and reading the server's clock for the
// clock-skew guard.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	backoff "github.com/odeke-em/exponential-backoff"
	"github.com/odeke-em/statos"
	"golang.org/x/oauth2"

	"github.com/fileshare-client/fileshare"
)

// ChunkSize is the size of one upload packet (spec.md §6.1).
const ChunkSize = 20 * 1024 * 1024

const maxRetries = 5

// Remote is the client-side handle to one fileshare server endpoint.
type Remote struct {
	baseURL string
	client  *http.Client

	// ProgressChan, when non-nil, receives the number of bytes written for
	// every chunk transferred, mirroring the teacher's own progressChan
	// wired into its progress bar.
	ProgressChan chan int64
}

// New builds a Remote against baseURL, authenticating every request with
// authToken via a bearer token source (oauth2.StaticTokenSource wraps a
// token that never needs refreshing, since the fileshare protocol issues
// one long-lived token per repository rather than running an OAuth
// handshake).
func New(baseURL, authToken string) *Remote {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: authToken, TokenType: "Bearer"})
	return &Remote{
		baseURL: baseURL,
		client:  oauth2.NewClient(context.Background(), src),
	}
}

func (r *Remote) url(p string) string {
	return r.baseURL + p
}

// ServerTimeMs fetches the remote's clock for the clock-skew guard
// (spec.md §6.4): any upload or download must be preceded by a check that
// abs(serverTimeMs - clientTimeMs) is under one second.
func (r *Remote) ServerTimeMs(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url("/time_epoch"), nil)
	if err != nil {
		return 0, fileshare.TransportErr(err)
	}

	resp, err := r.doWithRetry(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fileshare.TransportErr(err)
	}

	ms, err := strconv.ParseInt(string(bytes.TrimSpace(body)), 10, 64)
	if err != nil {
		return 0, fileshare.ParseErr(err)
	}
	return ms, nil
}

// CheckClockSkew fetches the server time and compares it against the
// caller's own clock, returning a ClockSkew error when the offset is one
// second or more.
func (r *Remote) CheckClockSkew(ctx context.Context) error {
	serverMs, err := r.ServerTimeMs(ctx)
	if err != nil {
		return err
	}
	clientMs := time.Now().UnixMilli()
	delta := serverMs - clientMs
	if delta < 0 {
		delta = -delta
	}
	if delta >= 1000 {
		return fileshare.ClockSkewErr(delta)
	}
	return nil
}

// Tree fetches and parses the remote's current directory tree.
func (r *Remote) Tree(ctx context.Context) (fileshare.Directory, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url("/tree"), nil)
	if err != nil {
		return fileshare.Directory{}, fileshare.TransportErr(err)
	}

	resp, err := r.doWithRetry(req)
	if err != nil {
		return fileshare.Directory{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fileshare.Directory{}, fileshare.TransportErr(err)
	}
	return fileshare.FromWire(body)
}

// Download streams path's remote bytes into dst, reporting progress on
// ProgressChan if set, and returns the server's authoritative
// modification timestamp for the file (spec.md §6.1) so the caller can
// stamp the freshly written local copy with it rather than the time the
// write happened to finish.
func (r *Remote) Download(ctx context.Context, path string, dst io.Writer) (modTimeMs int64, err error) {
	q := url.Values{"path": {path}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url("/file?"+q.Encode()), nil)
	if err != nil {
		return 0, fileshare.TransportErr(err)
	}

	resp, err := r.doWithRetry(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	modTimeMs, err = strconv.ParseInt(resp.Header.Get("content-timestamp"), 10, 64)
	if err != nil {
		return 0, fileshare.ParseErr(fmt.Errorf("download %s: missing or malformed content-timestamp header", path))
	}

	body := resp.Body
	reader := io.Reader(body)
	if r.ProgressChan != nil {
		statusReader := statos.NewReader(body)
		go r.relayProgress(statusReader.ProgressChan())
		reader = statusReader
	}

	if _, err := io.Copy(dst, reader); err != nil {
		return 0, fileshare.TransportErr(err)
	}
	return modTimeMs, nil
}

// relayProgress drains a statos progress channel onto r.ProgressChan,
// converting its per-Read byte counts to int64 to match the rest of the
// package's progress accounting.
func (r *Remote) relayProgress(src chan int) {
	for n := range src {
		r.ProgressChan <- int64(n)
	}
}

// uploadResponse is the JSON body returned on the first (201) and final
// (202) chunks of an upload (spec.md §6.1).
type uploadResponse struct {
	Status       string `json:"status"`
	ContentToken string `json:"content_token"`
	FileID       string `json:"file_id"`
}

// Upload streams src (size bytes long) to the remote in ChunkSize packets,
// sending name and parentPath percent-encoded in the content-name and
// content-path headers. The first chunk
// carries the full content-name/content-size/content-mimetype/
// content-path/content-description/content-timestamp header set; later
// chunks echo back the content-token the server handed back on the
// previous response (spec.md §6.1). resumeToken, when non-empty, resumes
// a previously interrupted upload instead of sending the header set
// again; onToken is invoked when the server issues a content token (a 201
// reply) so the caller can persist it for a future resume.
func (r *Remote) Upload(ctx context.Context, name, parentPath string, size, modTimeMs int64, src io.Reader, resumeToken string, onToken func(token string)) (fileID string, err error) {
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	token := resumeToken
	first := token == ""

	buf := make([]byte, ChunkSize)
	for {
		if err := fileshare.CheckInterrupted(); err != nil {
			return "", err
		}

		n, readErr := io.ReadFull(src, buf)
		if n == 0 && readErr != nil {
			if readErr == io.EOF {
				break
			}
			return "", fileshare.TransportErr(readErr)
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		final := readErr == io.EOF || readErr == io.ErrUnexpectedEOF

		chunkBody := func() io.Reader {
			reader := io.Reader(bytes.NewReader(chunk))
			if r.ProgressChan != nil {
				statusReader := statos.NewReader(bytes.NewReader(chunk))
				go r.relayProgress(statusReader.ProgressChan())
				reader = statusReader
			}
			return reader
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url("/upload"), chunkBody())
		if err != nil {
			return "", fileshare.TransportErr(err)
		}
		req.ContentLength = int64(n)
		// GetBody lets doWithRetry rebuild this exact chunk's body on a
		// retried attempt instead of resending whatever the first attempt
		// already drained from it.
		req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(chunkBody()), nil }

		if first {
			req.Header.Set("content-name", url.QueryEscape(name))
			req.Header.Set("content-size", strconv.FormatInt(size, 10))
			req.Header.Set("content-mimetype", contentType)
			req.Header.Set("content-path", url.QueryEscape(parentPath))
			req.Header.Set("content-description", "")
			req.Header.Set("content-timestamp", strconv.FormatInt(modTimeMs, 10))
		} else {
			req.Header.Set("content-token", token)
		}

		resp, err := r.doWithRetry(req)
		if err != nil {
			return "", err
		}

		var parsed uploadResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			if decodeErr != nil || parsed.ContentToken == "" {
				return "", fileshare.ParseErr(fmt.Errorf("upload %s: missing content_token on 201", name))
			}
			token = parsed.ContentToken
			if onToken != nil {
				onToken(token)
			}
		case http.StatusOK:
			// middle chunk: token carries forward unchanged.
		case http.StatusAccepted:
			if decodeErr != nil || parsed.FileID == "" {
				return "", fileshare.ParseErr(fmt.Errorf("upload %s: missing file_id on 202", name))
			}
			return parsed.FileID, nil
		default:
			return "", fileshare.TransportErr(fmt.Errorf("upload %s: unexpected status %d", name, resp.StatusCode))
		}

		if final {
			if resp.StatusCode != http.StatusAccepted {
				return "", fileshare.ProtocolErr(fmt.Errorf("upload %s: final chunk did not return 202", name))
			}
			break
		}
		first = false
	}

	return fileID, nil
}

// Delete removes path from the remote.
func (r *Remote) Delete(ctx context.Context, path string) error {
	q := url.Values{"path": {path}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url("/delete?"+q.Encode()), nil)
	if err != nil {
		return fileshare.TransportErr(err)
	}

	resp, err := r.doWithRetry(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// doWithRetry executes req, retrying transient failures (5xx, connection
// errors) with the teacher's exponential-backoff package and mapping
// terminal HTTP statuses onto the package's error taxonomy. Requests that
// carry a body must set GetBody (Upload sets it explicitly for each chunk,
// since its body may be a statos progress reader) so a retry can rewind and
// resend the same bytes instead of sending an empty body the second time.
func (r *Remote) doWithRetry(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, fileshare.TransportErr(berr)
			}
			req.Body = body
		}

		resp, err = r.client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}
		if attempt == maxRetries-1 {
			break
		}
		time.Sleep(backoff.Backoff(attempt))
	}

	if err != nil {
		return nil, fileshare.TransportErr(err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		resp.Body.Close()
		return nil, fileshare.WrongCredentialsErr(fmt.Errorf("remote rejected the auth token"))
	case http.StatusForbidden:
		resp.Body.Close()
		return nil, fileshare.AccessDeniedErr(req.URL.Path, fmt.Errorf("remote denied access"))
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fileshare.NotFoundErr(req.URL.Query().Get("path"))
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fileshare.TransportErr(fmt.Errorf("%s: unexpected status %d", req.URL.Path, resp.StatusCode))
	}

	return resp, nil
}
