// Package submit starts provider operations for jobs, retrying instantly
// with a different token on failure and disabling tokens that fail
// authentication.
package submit
