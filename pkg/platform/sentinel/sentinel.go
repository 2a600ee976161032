package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and clients return these
// (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: document or record does not exist
// - ErrConflict: concurrent modification detected by the backing store
// - ErrAlreadyReserved: another run holds the reservation for this event
// - ErrUnavailable: service or resource temporarily unavailable
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyReserved = errors.New("already reserved")
	ErrUnavailable     = errors.New("unavailable")
)
