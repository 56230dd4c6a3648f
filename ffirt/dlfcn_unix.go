//go:build darwin || freebsd || linux

package ffirt

import "github.com/ebitengine/purego"

type systemLinker struct{}

func (systemLinker) Open(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

func (systemLinker) Symbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func (systemLinker) Default() uintptr {
	return purego.RTLD_DEFAULT
}
