package consumer

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/snyk-ps/snyk-tag-processor/internal/snyk"
)

// Job is the decoded queue message body. The descriptor is treated as
// immutable; requeueing builds a fresh copy via withAttempt rather than
// mutating a decoded value.
type Job struct {
	TargetName   string     `json:"target_name"`
	Branch       string     `json:"branch"`
	Tags         []snyk.Tag `json:"tags"`
	OrgID        string     `json:"org_id"`
	ImportJobURL string     `json:"import_job_url"`
	Attempts     int        `json:"attempts"`
}

// decodeJob parses a message body. Malformed JSON and missing required
// fields are both reported as errors so the caller can drop the message —
// retrying cannot fix a structurally invalid payload.
func decodeJob(body []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(body, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}

	var missing []string
	if j.TargetName == "" {
		missing = append(missing, "target_name")
	}
	if j.Branch == "" {
		missing = append(missing, "branch")
	}
	if j.Tags == nil {
		missing = append(missing, "tags")
	}
	if j.OrgID == "" {
		missing = append(missing, "org_id")
	}
	if j.ImportJobURL == "" {
		missing = append(missing, "import_job_url")
	}
	if len(missing) > 0 {
		return Job{}, fmt.Errorf("decode job: missing required fields: %s", strings.Join(missing, ", "))
	}
	if j.Attempts < 0 {
		return Job{}, fmt.Errorf("decode job: negative attempts %d", j.Attempts)
	}
	return j, nil
}

// withAttempt returns a copy of j with the attempt counter replaced and
// every other field preserved.
func (j Job) withAttempt(n int) Job {
	next := j
	next.Attempts = n
	next.Tags = slices.Clone(j.Tags)
	return next
}
