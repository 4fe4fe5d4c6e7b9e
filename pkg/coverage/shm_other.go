//go:build !linux

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: shm_other.go
Description: Shared memory stub for platforms without System V IPC support.
*/

package coverage

// SharedMemory is unavailable on this platform
type SharedMemory struct{}

// NewSharedMemory always fails with ErrUnsupported
func NewSharedMemory(size int) (*SharedMemory, error) {
	return nil, ErrUnsupported
}

func (s *SharedMemory) ID() int                   { return -1 }
func (s *SharedMemory) Reset() error              { return ErrUnsupported }
func (s *SharedMemory) Snapshot() ([]byte, error) { return nil, ErrUnsupported }
func (s *SharedMemory) Close() error              { return nil }
