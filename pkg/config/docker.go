package config

import (
	"os"
	"strconv"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if oml2view runs inside a container.
// OML2VIEW_IN_DOCKER=true|false overrides detection; otherwise the presence of
// /.dockerenv decides. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		if v, ok := os.LookupEnv("OML2VIEW_IN_DOCKER"); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				isDockerResult = b
				return
			}
		}
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker returns the address to reach a measurement database server.
// Inside a container "localhost" and "127.0.0.1" refer to the container itself,
// so they are mapped to "host.docker.internal" where the OML2 server usually runs.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}

	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}

	return host
}
