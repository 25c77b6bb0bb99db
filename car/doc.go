// Package car implements a streaming reader and writer for the CAR
// (Content Addressed aRchive) format used to persist and exchange
// blockchain block graphs.
//
// It supports both CARv1 (a CBOR header followed by varint length-prefixed
// CID/data frames) and CARv2 (a fixed pragma and header wrapping a CARv1
// payload at a byte offset, with an optional trailing index region that
// this package does not interpret). Input may optionally be zstd
// compressed; CarStream detects and transparently unwraps it.
package car
