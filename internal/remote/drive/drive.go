// Package drive stores dataset files in the application data folder of a
// Google Drive account.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/model"
	"github.com/klauern/padsync/internal/sync"
)

// AppDataFolder is the hidden per-application space files are kept in.
const AppDataFolder = "appDataFolder"

const (
	fileFields = "id, name, modifiedTime, trashed"
	mimeType   = "application/json"
)

// Client is a remote store backed by Drive v3.
type Client struct {
	svc   *drive.Service
	space string
}

// New creates a client that sends requests through httpClient, which is
// expected to attach credentials.
func New(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Client{svc: svc, space: AppDataFolder}, nil
}

// FindByStableID returns the file with id, or nil if it is missing or trashed.
func (c *Client) FindByStableID(ctx context.Context, id string) (*sync.FileHandle, error) {
	f, err := c.svc.Files.Get(id).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify("find by id", err)
	}
	if f.Trashed {
		return nil, nil
	}
	return toHandle(f), nil
}

// FindByName returns the most recently modified file called name, or nil.
func (c *Client) FindByName(ctx context.Context, name string) (*sync.FileHandle, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	list, err := c.svc.Files.List().
		Spaces(c.space).
		Q(q).
		OrderBy("modifiedTime desc").
		PageSize(1).
		Fields(googleapi.Field("files(" + fileFields + ")")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("find by name", err)
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return toHandle(list.Files[0]), nil
}

// Download fetches and decodes the file contents, or returns nil if the
// file no longer exists.
func (c *Client) Download(ctx context.Context, handle sync.FileHandle) (*model.Dataset, error) {
	resp, err := c.svc.Files.Get(handle.ID).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify("download", err)
	}
	defer func() { _ = resp.Body.Close() }()

	ds, err := model.Decode(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, sync.NewError(sync.KindNetwork, "download", err)
		}
		return nil, sync.NewError(sync.KindInvalidDataset, "download", err)
	}
	logging.Debug("downloaded dataset", logging.Store("drive"), logging.Key(handle.ID))
	return ds, nil
}

// Upload creates the file, or updates existing in place and renames it to
// name if needed.
func (c *Client) Upload(ctx context.Context, name string, ds *model.Dataset, existing *sync.FileHandle) (*sync.FileHandle, error) {
	var buf bytes.Buffer
	if err := model.Encode(&buf, ds); err != nil {
		return nil, sync.NewError(sync.KindInvalidDataset, "upload", err)
	}
	size := buf.Len()

	var (
		f   *drive.File
		err error
	)
	if existing == nil {
		f, err = c.svc.Files.Create(&drive.File{
			Name:     name,
			MimeType: mimeType,
			Parents:  []string{c.space},
		}).
			Media(&buf, googleapi.ContentType(mimeType)).
			Fields(fileFields).
			Context(ctx).
			Do()
	} else {
		f, err = c.svc.Files.Update(existing.ID, &drive.File{Name: name}).
			Media(&buf, googleapi.ContentType(mimeType)).
			Fields(fileFields).
			Context(ctx).
			Do()
	}
	if err != nil {
		return nil, classify("upload", err)
	}

	logging.Debug("uploaded dataset", logging.Store("drive"), logging.Key(f.Id), logging.Count(size))
	return toHandle(f), nil
}

func toHandle(f *drive.File) *sync.FileHandle {
	h := &sync.FileHandle{ID: f.Id, Name: f.Name}
	if ts, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		h.ModifiedAt = ts.UTC()
	}
	return h
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// classify maps Drive API failures onto sync error kinds.
func classify(op string, err error) error {
	var se *sync.Error
	if errors.As(err, &se) {
		return se
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return sync.NewError(sync.KindNetwork, op, err)
	}

	switch {
	case gerr.Code == http.StatusUnauthorized:
		return sync.NewError(sync.KindAuthExpired, op, err)
	case gerr.Code == http.StatusNotFound:
		return sync.NewError(sync.KindRemoteNotFound, op, err)
	case gerr.Code == http.StatusTooManyRequests, gerr.Code == http.StatusForbidden && isRateLimit(gerr):
		se := sync.NewError(sync.KindRateLimited, op, err)
		se.RetryAfter = retryAfter(gerr.Header)
		return se
	case gerr.Code == http.StatusForbidden:
		return sync.NewError(sync.KindNotAuthenticated, op, err)
	default:
		return sync.NewError(sync.KindNetwork, op, err)
	}
}

func isRateLimit(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
