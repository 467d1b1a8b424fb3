package domain

import (
	pkgerrors "catalog/pkg/errors"
)

var (
	// Collection errors
	ErrCollectionNotFound       = pkgerrors.NewNotFound("collection not found")
	ErrCannotMoveIntoSelf       = pkgerrors.NewIllegalOperation("cannot move a collection into itself or one of its descendants")
	ErrCannotDeleteRoot         = pkgerrors.NewIllegalOperation("the root collection cannot be deleted")
	ErrCannotMoveRoot           = pkgerrors.NewIllegalOperation("the root collection cannot be moved")
	ErrInvalidCollectionName    = pkgerrors.NewUserInputError("collection name must not be empty")
	ErrParentCollectionNotFound = pkgerrors.NewNotFound("parent collection not found")

	// Filter errors
	ErrUnknownFilter    = pkgerrors.NewUserInputError("unknown collection filter")
	ErrInvalidFilterArg = pkgerrors.NewUserInputError("invalid collection filter argument")

	// Channel errors
	ErrChannelNotFound       = pkgerrors.NewNotFound("channel not found")
	ErrDefaultChannelRemoval = pkgerrors.NewUserInputError("items cannot be removed from the default channel")

	// Job errors
	ErrJobCancelled = pkgerrors.NewIllegalOperation("job was cancelled")
)
