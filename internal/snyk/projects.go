package snyk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// originAzureRepos filters listings to projects imported from Azure Repos,
// the only source system feeding this queue.
const originAzureRepos = "azure-repos"

// listPageSize is the REST API maximum page size.
const listPageSize = "100"

// ProjectIDs returns the IDs of every project whose name starts with
// targetName on the given branch, following pagination until the server
// stops supplying a next link. IDs accumulate in page order. A failure on
// any page aborts the whole listing — tagging from a partial project set
// is worse than retrying the message.
func (c *Client) ProjectIDs(ctx context.Context, targetName, branch, orgID string) ([]string, error) {
	first := *c.restURL
	first.Path = joinPath(first.Path, "orgs", url.PathEscape(orgID), "projects")
	q := url.Values{}
	q.Set("version", c.restVersion)
	q.Set("names_start_with", targetName)
	q.Set("target_reference", branch)
	q.Set("origins", originAzureRepos)
	q.Set("limit", listPageSize)
	first.RawQuery = q.Encode()

	var ids []string
	next := first.String()
	for next != "" {
		pageIDs, nextLink, err := c.projectsPage(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("list projects %s/%s: %w", targetName, branch, err)
		}
		ids = append(ids, pageIDs...)

		if nextLink == "" {
			break
		}
		// Next links come back host-relative (/rest/orgs/...); resolve them
		// against the configured API base.
		resolved, err := c.restURL.Parse(nextLink)
		if err != nil {
			return nil, fmt.Errorf("list projects %s/%s: bad next link %q: %w", targetName, branch, nextLink, err)
		}
		next = resolved.String()
	}
	return ids, nil
}

// projectsPage fetches one listing page, returning its project IDs and the
// raw next link ("" when this is the last page).
func (c *Client) projectsPage(ctx context.Context, pageURL string) ([]string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Data []struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"data"`
		Links struct {
			Next string `json:"next"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("decode page: %w", err)
	}

	ids := make([]string, 0, len(payload.Data))
	for _, item := range payload.Data {
		if item.Type == "project" {
			ids = append(ids, item.ID)
		}
	}
	return ids, payload.Links.Next, nil
}
