// Package staging manages per-job scratch directories under paths.work_dir.
//
// Each job gets <work_dir>/job-<jobID>. The directory is wiped at the start of
// every execution so a retry never sees files from the failed attempt, and
// removed once the job settles.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const jobDirPrefix = "job-"

// JobDir returns the scratch directory for a job.
func JobDir(workDir, jobID string) string {
	return filepath.Join(workDir, jobDirPrefix+jobID)
}

// Prepare recreates an empty scratch directory for jobID.
func Prepare(workDir, jobID string) (string, error) {
	if strings.TrimSpace(workDir) == "" {
		return "", fmt.Errorf("staging: work dir not configured")
	}
	if strings.TrimSpace(jobID) == "" || strings.ContainsAny(jobID, `/\`) {
		return "", fmt.Errorf("staging: invalid job id %q", jobID)
	}
	dir := JobDir(workDir, jobID)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("staging: clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("staging: create %s: %w", dir, err)
	}
	return dir, nil
}

// Remove deletes a job's scratch directory.
func Remove(workDir, jobID string) error {
	return os.RemoveAll(JobDir(workDir, jobID))
}

// jobIDFromDir reports the job id encoded in a scratch directory name.
func jobIDFromDir(name string) (string, bool) {
	if !strings.HasPrefix(name, jobDirPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(name, jobDirPrefix)
	return id, id != ""
}
