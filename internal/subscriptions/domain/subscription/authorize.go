package subscription

// Authorize returns ErrPermissionDenied unless caller is the owner.
// It is the single ownership policy for every guarded operation.
func Authorize(caller, owner string) error {
	if caller == "" || caller != owner {
		return ErrPermissionDenied
	}
	return nil
}
