// Package store reads and writes pairing payload files.
//
// Decrypted payloads are written as indented JSON via a temp file in the
// target directory followed by a rename, so readers never observe a partial
// file. Payload files are created with mode 0600 since they may carry
// credentials handed over by the companion.
package store
