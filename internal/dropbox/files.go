package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Entry tag values from the provider's ".tag" discriminant.
const (
	TagFile    = "file"
	TagFolder  = "folder"
	TagDeleted = "deleted"
)

// Entry is a normalized file or folder entry from a listing or delta page.
// PathLower is the case-normalized natural key; PathDisplay preserves the
// provider's display casing.
type Entry struct {
	Tag            string
	Name           string
	PathLower      string
	PathDisplay    string
	Size           int64
	ServerModified time.Time
}

// IsFolder reports whether the entry's discriminant tag marks a folder.
func (e Entry) IsFolder() bool {
	return e.Tag == TagFolder
}

// IsDeleted reports whether the provider reported the path as removed.
func (e Entry) IsDeleted() bool {
	return e.Tag == TagDeleted
}

// entryResponse mirrors the provider's metadata JSON exactly.
// Unexported; callers receive normalized Entry values.
type entryResponse struct {
	Tag            string `json:".tag"` //nolint:tagliatelle // provider discriminant key
	Name           string `json:"name"`
	PathLower      string `json:"path_lower"`
	PathDisplay    string `json:"path_display"`
	Size           int64  `json:"size"`
	ServerModified string `json:"server_modified"`
}

// toEntry normalizes a provider metadata response into our Entry type.
func (r *entryResponse) toEntry(logger *slog.Logger) Entry {
	return Entry{
		Tag:            r.Tag,
		Name:           r.Name,
		PathLower:      NormalizePath(r.PathLower),
		PathDisplay:    r.PathDisplay,
		Size:           r.Size,
		ServerModified: parseTimestamp(r.ServerModified, r.PathLower, logger),
	}
}

// parseTimestamp parses an RFC3339 timestamp. Empty or invalid timestamps
// (folders carry none) yield the zero time.
func parseTimestamp(raw, path string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid server_modified timestamp, ignoring",
			slog.String("path", path),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t
}

type listFolderRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type listFolderContinueRequest struct {
	Cursor string `json:"cursor"`
}

type listFolderResponse struct {
	Entries []entryResponse `json:"entries"`
	Cursor  string          `json:"cursor"`
	HasMore bool            `json:"has_more"`
}

// ListPage is one page of listing results plus the cursor for the next call.
type ListPage struct {
	Entries []Entry
	Cursor  string
	HasMore bool
}

// ListFolder starts a listing of path. Pass recursive=true to enumerate the
// whole subtree; the initial position for an account with no saved cursor.
func (c *Client) ListFolder(ctx context.Context, path string, recursive bool) (*ListPage, error) {
	c.logger.Info("listing folder",
		slog.String("path", path),
		slog.Bool("recursive", recursive),
	)

	body, err := json.Marshal(listFolderRequest{Path: path, Recursive: recursive})
	if err != nil {
		return nil, fmt.Errorf("dropbox: marshaling list request: %w", err)
	}

	return c.listPage(ctx, "/files/list_folder", body)
}

// ListFolderContinue fetches the next page of changes after a saved cursor.
func (c *Client) ListFolderContinue(ctx context.Context, cursor string) (*ListPage, error) {
	body, err := json.Marshal(listFolderContinueRequest{Cursor: cursor})
	if err != nil {
		return nil, fmt.Errorf("dropbox: marshaling continue request: %w", err)
	}

	return c.listPage(ctx, "/files/list_folder/continue", body)
}

// listPage executes one listing RPC and decodes the page.
func (c *Client) listPage(ctx context.Context, path string, body []byte) (*ListPage, error) {
	resp, err := c.Do(ctx, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var lr listFolderResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("dropbox: decoding list response: %w", err)
	}

	entries := make([]Entry, 0, len(lr.Entries))
	for i := range lr.Entries {
		entries = append(entries, lr.Entries[i].toEntry(c.logger))
	}

	c.logger.Debug("fetched listing page",
		slog.Int("count", len(entries)),
		slog.Bool("has_more", lr.HasMore),
	)

	return &ListPage{Entries: entries, Cursor: lr.Cursor, HasMore: lr.HasMore}, nil
}

// ListAll accumulates every page of a listing and returns the combined
// entries with the final cursor for the next incremental call. An empty
// cursor starts a full recursive enumeration of root; a non-empty cursor
// continues from the saved position.
func (c *Client) ListAll(ctx context.Context, root, cursor string) ([]Entry, string, error) {
	c.logger.Info("starting full enumeration",
		slog.String("root", root),
		slog.Bool("initial", cursor == ""),
	)

	var (
		all  []Entry
		page *ListPage
		err  error
	)

	pageNum := 1

	for {
		if cursor == "" {
			page, err = c.ListFolder(ctx, root, true)
		} else {
			page, err = c.ListFolderContinue(ctx, cursor)
		}

		if err != nil {
			return nil, "", err
		}

		all = append(all, page.Entries...)
		cursor = page.Cursor

		c.logger.Debug("accumulated entries",
			slog.Int("page", pageNum),
			slog.Int("page_entries", len(page.Entries)),
			slog.Int("total_entries", len(all)),
		)

		if !page.HasMore {
			c.logger.Info("enumeration complete",
				slog.String("root", root),
				slog.Int("total_entries", len(all)),
				slog.Int("pages", pageNum),
			)

			return all, cursor, nil
		}

		pageNum++
	}
}

type createFolderRequest struct {
	Path       string `json:"path"`
	Autorename bool   `json:"autorename"`
}

type createFolderResponse struct {
	Metadata entryResponse `json:"metadata"`
}

// CreateFolder creates a folder at the given path. Autorename is off; a
// name collision surfaces as ErrConflict (HTTP 409) for the caller to treat
// as already-exists.
func (c *Client) CreateFolder(ctx context.Context, path string) (*Entry, error) {
	c.logger.Info("creating folder", slog.String("path", path))

	body, err := json.Marshal(createFolderRequest{Path: path, Autorename: false})
	if err != nil {
		return nil, fmt.Errorf("dropbox: marshaling create folder request: %w", err)
	}

	resp, err := c.Do(ctx, "/files/create_folder_v2", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cr createFolderResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("dropbox: decoding create folder response: %w", err)
	}

	cr.Metadata.Tag = TagFolder
	entry := cr.Metadata.toEntry(c.logger)

	return &entry, nil
}

type getMetadataRequest struct {
	Path string `json:"path"`
}

// GetMetadata fetches metadata for a single path. A missing path surfaces
// as ErrNotFound; the drift-detection signal for the provisioner.
func (c *Client) GetMetadata(ctx context.Context, path string) (*Entry, error) {
	c.logger.Debug("getting metadata", slog.String("path", path))

	body, err := json.Marshal(getMetadataRequest{Path: path})
	if err != nil {
		return nil, fmt.Errorf("dropbox: marshaling metadata request: %w", err)
	}

	resp, err := c.Do(ctx, "/files/get_metadata", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var er entryResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("dropbox: decoding metadata response: %w", err)
	}

	entry := er.toEntry(c.logger)

	return &entry, nil
}

// CheckAccount probes the current account endpoint. A nil return means the
// bearer token is live; ErrUnauthorized means it is not. Used as the
// independent liveness probe for cached access tokens.
func (c *Client) CheckAccount(ctx context.Context) error {
	resp, err := c.Do(ctx, "/users/get_current_account", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("account probe succeeded")

	return nil
}
