package stage

import (
	"storyforge/internal/services"
)

// Classify tags a stage failure. A failure of a non-retryable stage becomes
// permanent unless it already carries a permanent marker.
func Classify(name Name, retryable bool, err error) error {
	if err == nil || retryable || services.IsPermanent(err) {
		return err
	}
	return services.Wrap(services.ErrPermanent, string(name), "execute", "stage is not retryable", err)
}
