package car

import "errors"

// ErrInvalidData is returned when a CAR stream is structurally malformed:
// an undecodable or unacceptable header, a CARv2 data offset that cannot be
// reached, a block whose CID cannot be decoded, or a first block whose data
// does not hash to its declared CID. A truncated frame surfaces as
// io.ErrUnexpectedEOF instead, and blocks after the first are not
// hash-checked by CarStream.
var ErrInvalidData = errors.New("car: invalid data")

// ErrSectionTooLarge is returned when a frame's declared length exceeds the
// configured MaxAllowedSectionSize.
var ErrSectionTooLarge = errors.New("car: section length exceeds maximum allowed size")

// ErrHeaderTooLarge is returned when a CARv1 header frame's declared length
// exceeds the configured MaxAllowedHeaderSize.
var ErrHeaderTooLarge = errors.New("car: header length exceeds maximum allowed size")

// ErrBlockCidMismatch is returned by CarBlock.Validate when a block's data
// does not hash to its declared CID.
var ErrBlockCidMismatch = errors.New("car: block data does not hash to its declared cid")
