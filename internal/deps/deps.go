package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external binary the pipeline shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement plus the outcome of looking it up on PATH.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// CheckBinaries looks up every requirement and reports availability in input
// order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		results[i] = Status{Requirement: req}
		switch {
		case req.Command == "":
			results[i].Detail = "command not configured"
		case lookPath(req.Command) != nil:
			results[i].Detail = fmt.Sprintf("binary %q not found", req.Command)
		default:
			results[i].Available = true
		}
	}
	return results
}

func lookPath(command string) error {
	_, err := exec.LookPath(command)
	return err
}
