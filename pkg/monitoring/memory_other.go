/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: memory_other.go
Description: Child resource usage stub for platforms without getrusage support.
*/

//go:build !linux

package monitoring

func childPeakRSS() int64 { return 0 }
