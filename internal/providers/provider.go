package providers

import (
	"fmt"
	"strings"

	"github.com/pinpoint/pkg/models"
)

// SplitRepo splits "owner/name" into its parts.
func SplitRepo(repo string) (owner, name string, err error) {
	if !models.ValidRepository(repo) {
		return "", "", fmt.Errorf("invalid repository identifier %q", repo)
	}
	owner, name, _ = strings.Cut(repo, "/")
	return owner, name, nil
}
