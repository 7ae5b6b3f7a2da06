package node

import "errors"

// joinSetup returns the single error unchanged and joins several.
func joinSetup(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}
