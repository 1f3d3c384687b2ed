// Package testutil provides test helpers shared across this project's
// packages.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (AssertValidUTF8, AssertContainsAll)
//   - fs_helpers.go: filesystem operations (WriteFile, ReadFile, MustExist) used
//     by loader and media-copy tests
//
// Store-specific fixtures live in the sibling storetest package; pointer
// helpers live in ptr.
package testutil
