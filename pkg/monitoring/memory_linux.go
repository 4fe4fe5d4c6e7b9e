/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: memory_linux.go
Description: Child resource usage on Linux via getrusage.
*/

//go:build linux

package monitoring

import "golang.org/x/sys/unix"

// childPeakRSS returns the largest resident size of any waited-for child
func childPeakRSS() int64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_CHILDREN, &ru); err != nil {
		return 0
	}
	return int64(ru.Maxrss) * 1024 // kilobytes on linux
}
