//go:build mage

// Package main provides build targets for qfleet using Mage.
//
// Usage:
//
//	mage build      Compile the qfleet binary to bin/
//	mage test       Run all tests
//	mage scenarios  Run the rewrite scenario harness
//	mage lint       Run golangci-lint
//	mage clean      Remove build artifacts
//	mage install    Install qfleet to GOPATH/bin
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binLint    = "golangci-lint"
	binaryName = "qfleet"
	binaryDir  = "bin"
	cmdDir     = "./cmd/qfleet"
)

// Build compiles the qfleet binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests.
func Test() error {
	return sh.RunV(binGo, "test", "./...")
}

// Scenarios builds the binary and runs the harness scenarios through it.
func Scenarios() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binaryDir, binaryName), "test", "internal/harness/testdata/scenarios")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	return sh.Copy(filepath.Join(gopath, "bin", binaryName), filepath.Join(binaryDir, binaryName))
}
