package tree

import "errors"

// Declaration errors. They are fatal for a whole conversion.
var (
	ErrUnsupportedType  = errors.New("unsupported branch type")
	ErrAmbiguousLength  = errors.New("ambiguous array length")
	ErrDuplicateBranch  = errors.New("duplicate branch name")
	ErrMalformedLeaf    = errors.New("malformed leaf declaration")
	ErrDeclarationDrift = errors.New("declarations differ between sources")
)
