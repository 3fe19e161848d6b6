//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var (
	binDir  = "bin"
	appName = "checkout-gateway"
	mainPkg = "./cmd/server"
)

var Default = Build

// Build compiles the server. mattn/go-sqlite3 needs cgo.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	out := filepath.Join(binDir, appName+exeSuffix())
	fmt.Println("Building:", out)

	env := map[string]string{"CGO_ENABLED": "1"}
	return sh.RunWithV(env, "go", "build", "-trimpath", "-o", out, mainPkg)
}

func Test() error {
	fmt.Println("Testing...")
	return sh.RunV("go", "test", "./...", "-count=1")
}

func Race() error {
	return sh.RunWithV(map[string]string{"CGO_ENABLED": "1"}, "go", "test", "-race", "./...", "-count=1")
}

func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

func Run() error {
	return sh.RunV("go", "run", mainPkg, "serve")
}

func Migrate() error {
	return sh.RunV("go", "run", mainPkg, "migrate")
}

func Check() {
	mg.SerialDeps(Vet, Test)
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
