package snyk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Tag is a key/value pair applied to a project. Applying a tag that is
// already present is a success, not a failure.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TagResult aggregates the outcome of one cross-product tagging run.
type TagResult struct {
	Tagged        int
	AlreadyTagged int
	Failed        int
}

// OK reports whether every apply either succeeded or was already present.
func (r TagResult) OK() bool {
	return r.Failed == 0
}

// errAlreadyTagged marks the v1 API's 422 response: the tag exists.
var errAlreadyTagged = errors.New("already tagged")

// TagProjects applies every tag to every project — the full cross product,
// projects outer, tags inner. A failed pair is counted and skipped, never
// fatal: the remaining pairs are still attempted, and the caller's retry
// safely re-applies the whole cross product thanks to idempotent applies.
func (c *Client) TagProjects(ctx context.Context, projectIDs []string, tags []Tag, orgID string) TagResult {
	var res TagResult
	for _, id := range projectIDs {
		for _, tag := range tags {
			switch err := c.tagProject(ctx, id, tag, orgID); {
			case err == nil:
				res.Tagged++
				c.log.Debug("project tagged", "project_id", id, "key", tag.Key, "value", tag.Value)
			case errors.Is(err, errAlreadyTagged):
				res.AlreadyTagged++
				c.log.Debug("project already tagged", "project_id", id, "key", tag.Key, "value", tag.Value)
			default:
				res.Failed++
				c.log.Error("tag project failed",
					"project_id", id, "key", tag.Key, "value", tag.Value, "error", err)
			}
		}
	}
	return res
}

// tagProject applies one tag to one project via the v1 tags endpoint.
func (c *Client) tagProject(ctx context.Context, projectID string, tag Tag, orgID string) error {
	u := *c.v1URL
	u.Path = joinPath(u.Path, "org", url.PathEscape(orgID), "project", url.PathEscape(projectID), "tags")

	body, err := json.Marshal(tag)
	if err != nil {
		return fmt.Errorf("marshal tag: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	// Discard response body to allow connection reuse; cap at 4 KiB.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck,gosec

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnprocessableEntity:
		return errAlreadyTagged
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

func joinPath(base string, parts ...string) string {
	p := base
	for _, part := range parts {
		if len(p) == 0 || p[len(p)-1] != '/' {
			p += "/"
		}
		p += part
	}
	return p
}
