// Package shared holds helpers used across package boundaries. Its only
// subpackage today is testutil, which provides log capture and in-memory
// market archives for tests.
package shared
