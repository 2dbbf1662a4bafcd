// Package cryptctl implements the operator command line for the field
// cipher: a self-test, one-off encrypt and decrypt of a value, and the
// profile migration jobs, run either against the stores directly or
// through the admin gRPC service of a running server.
package cryptctl
