package grid

import "errors"

var (
	ErrInvalidSize        = errors.New("grid size out of range")
	ErrInvalidLabels      = errors.New("axis labels are not a permutation of the grid size")
	ErrInvalidOwner       = errors.New("claim owner is required")
	ErrOutOfBounds        = errors.New("cell out of bounds")
	ErrDeadlinePassed     = errors.New("selections are closed")
	ErrCellAlreadyClaimed = errors.New("cell already claimed")
	ErrCellNotClaimed     = errors.New("cell not claimed")
	ErrNotOwner           = errors.New("requester does not own the cell")
	ErrNotModerator       = errors.New("requester is not an organizer or moderator")
	ErrClaimLimit         = errors.New("owner reached the per-player claim limit")
)
