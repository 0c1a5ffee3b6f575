// Package upload sends local files to the upload service so they can ride
// along with the next message as attachments.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deckpilot/internal/logger"
	"deckpilot/internal/protocol"

	"github.com/dustin/go-humanize"
)

// DefaultMaxSize caps a single upload.
const DefaultMaxSize int64 = 25 << 20

var (
	ErrNotConfigured = errors.New("upload service not configured")
	ErrTooLarge      = errors.New("file too large")
)

// TokenFunc returns the bearer token for the upload request.
type TokenFunc func() (string, error)

type Options struct {
	Endpoint   string
	Token      TokenFunc
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxSize    int64
	Log        *logger.LogEntry
}

type Client struct {
	endpoint string
	token    TokenFunc
	http     *http.Client
	timeout  time.Duration
	maxSize  int64
	log      *logger.LogEntry
}

func New(opts Options) *Client {
	c := &Client{
		endpoint: strings.TrimSpace(opts.Endpoint),
		token:    opts.Token,
		http:     opts.HTTPClient,
		timeout:  opts.Timeout,
		maxSize:  opts.MaxSize,
		log:      opts.Log,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.maxSize <= 0 {
		c.maxSize = DefaultMaxSize
	}
	if c.log == nil {
		c.log = logger.Named("upload")
	}
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

// Upload posts path as multipart form field "file" and returns the stored
// attachment. The service may answer with only a url; name, type and size
// are then filled in from the local file.
func (c *Client) Upload(ctx context.Context, path string) (protocol.Attachment, error) {
	if !c.Configured() {
		return protocol.Attachment{}, ErrNotConfigured
	}
	f, err := os.Open(path)
	if err != nil {
		return protocol.Attachment{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return protocol.Attachment{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return protocol.Attachment{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > c.maxSize {
		return protocol.Attachment{}, fmt.Errorf("%w: %s is %s, limit %s", ErrTooLarge,
			filepath.Base(path), humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(c.maxSize)))
	}

	name := filepath.Base(path)
	mimeType := DetectType(name)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// stream the body instead of buffering the whole file
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		return protocol.Attachment{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		token, err := c.token()
		if err != nil {
			pr.CloseWithError(err)
			return protocol.Attachment{}, fmt.Errorf("resolve token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return protocol.Attachment{}, fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return protocol.Attachment{}, fmt.Errorf("upload %s: status %d: %s", name, resp.StatusCode, msg)
	}

	var out protocol.Attachment
	if err := json.Unmarshal(body, &out); err != nil {
		return protocol.Attachment{}, fmt.Errorf("decode upload response: %w", err)
	}
	if out.URL == "" {
		return protocol.Attachment{}, fmt.Errorf("upload %s: response has no url", name)
	}
	if out.Name == "" {
		out.Name = name
	}
	if out.MimeType == "" {
		out.MimeType = mimeType
	}
	if out.Size == 0 {
		out.Size = info.Size()
	}
	c.log.WithFields(logger.Fields{"name": out.Name, "size": out.Size, "mime": out.MimeType}).Info("uploaded attachment")
	return out, nil
}

// DetectType guesses a mime type from the file extension.
func DetectType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
		return t
	}
	return "application/octet-stream"
}

// Describe renders an attachment for the transcript, e.g. "notes.pdf (1.2 MB)".
func Describe(a protocol.Attachment) string {
	if a.Size <= 0 {
		return a.Name
	}
	return fmt.Sprintf("%s (%s)", a.Name, humanize.Bytes(uint64(a.Size)))
}
