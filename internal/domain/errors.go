package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidBoardID  = errors.New("invalid board id")
	ErrInvalidKind     = errors.New("invalid card kind")
	ErrInvalidSide     = errors.New("invalid side")
	ErrInvalidOffset   = errors.New("invalid side offset")
	ErrInvalidGeometry = errors.New("invalid geometry")
	ErrInvalidOrderKey = errors.New("invalid order key")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidPosition = errors.New("invalid position")
	ErrNotColumnable   = errors.New("card kind cannot join a column")
	ErrNotConnectable  = errors.New("card kind cannot anchor a line")
	ErrPayloadMismatch = errors.New("payload does not match card kind")
)
