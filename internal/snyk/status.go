package snyk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Status is the tri-state outcome of an import-job status poll.
type Status int

const (
	// StatusFailed covers every terminal non-complete report, including a
	// missing or unrecognized status field.
	StatusFailed Status = iota
	// StatusPending means the import is still running.
	StatusPending
	// StatusComplete means the import finished and its projects exist.
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusPending:
		return "pending"
	default:
		return "failed"
	}
}

// ImportJobStatus polls the job's status URL. A transport or decode failure
// is returned as an error, distinct from StatusFailed: "the import failed"
// and "we could not ask about the import" take different retry paths.
func (c *Client) ImportJobStatus(ctx context.Context, jobURL string) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL, nil)
	if err != nil {
		return StatusFailed, fmt.Errorf("import job status: build request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return StatusFailed, fmt.Errorf("import job status: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck,gosec
		return StatusFailed, fmt.Errorf("import job status: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return StatusFailed, fmt.Errorf("import job status: decode: %w", err)
	}

	switch payload.Status {
	case "complete":
		return StatusComplete, nil
	case "pending":
		return StatusPending, nil
	default:
		return StatusFailed, nil
	}
}
