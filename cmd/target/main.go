/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Demo fuzzing target. Reads up to 100 bytes from stdin and exits with
status 66 when the input starts with "crash".
*/

package main

import (
	"os"

	"github.com/kleascm/crashprobe/pkg/target"
)

func main() {
	os.Exit(target.Scan(os.Stdin, os.Stderr))
}
