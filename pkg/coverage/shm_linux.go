//go:build linux

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: shm_linux.go
Description: System V shared memory coverage map. The segment id is exported to the
target through __AFL_SHM_ID so that AFL instrumentation records edge hits into it.
*/

package coverage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SharedMemory is a Map backed by a System V shared memory segment
type SharedMemory struct {
	id   int
	data []byte
}

// NewSharedMemory creates and attaches a private segment of the given size
func NewSharedMemory(size int) (*SharedMemory, error) {
	if size <= 0 {
		size = MapSize
	}

	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|unix.IPC_EXCL|0o600)
	if err != nil {
		// A stale segment can collide on some kernels; retry without EXCL
		id, err = unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared memory: %w", err)
		}
	}

	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, fmt.Errorf("failed to attach shared memory %d: %w", id, err)
	}

	return &SharedMemory{id: id, data: data}, nil
}

// ID returns the segment id
func (s *SharedMemory) ID() int { return s.id }

// Reset zeroes the segment
func (s *SharedMemory) Reset() error {
	if s.data == nil {
		return fmt.Errorf("shared memory %d is closed", s.id)
	}
	clear(s.data)
	return nil
}

// Snapshot copies the segment
func (s *SharedMemory) Snapshot() ([]byte, error) {
	if s.data == nil {
		return nil, fmt.Errorf("shared memory %d is closed", s.id)
	}
	return append([]byte(nil), s.data...), nil
}

// Close detaches and removes the segment
func (s *SharedMemory) Close() error {
	if s.data == nil {
		return nil
	}
	if err := unix.SysvShmDetach(s.data); err != nil {
		return fmt.Errorf("failed to detach shared memory %d: %w", s.id, err)
	}
	s.data = nil
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, nil); err != nil {
		return fmt.Errorf("failed to remove shared memory %d: %w", s.id, err)
	}
	return nil
}
