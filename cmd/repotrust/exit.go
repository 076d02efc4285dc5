package main

import (
	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

const (
	exitOK               = 0
	exitInternalFailure  = 1
	exitInvalidInput     = 2
	exitVerifyFailed     = 3
	exitTransientFailure = 4
)

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryConfiguration:
		return exitInvalidInput
	case coreerrors.CategoryVerification,
		coreerrors.CategoryIdentityMismatch,
		coreerrors.CategoryIntegrity,
		coreerrors.CategorySigning:
		return exitVerifyFailed
	case coreerrors.CategoryNetworkTransient,
		coreerrors.CategoryRateLimited,
		coreerrors.CategoryPublishConflict:
		return exitTransientFailure
	case coreerrors.CategoryIOFailure, coreerrors.CategoryInternalFailure:
		return exitInternalFailure
	}
	return fallbackExit
}
