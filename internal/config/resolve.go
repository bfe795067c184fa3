package config

import (
	"fmt"
	"os"
)

// ResolveRootfs determines which rootfs tar to boot.
// Precedence:
//  1. flagRootfs (from --rootfs flag)
//  2. envRootfs (from RVE_ROOTFS env var)
//  3. .rverc walk-up from cwd
//  4. config.toml default_rootfs
func ResolveRootfs(flagRootfs, envRootfs string) (string, error) {
	if flagRootfs != "" {
		return flagRootfs, nil
	}
	if envRootfs != "" {
		return envRootfs, nil
	}

	cwd, err := os.Getwd()
	if err == nil {
		if rcPath, err := FindRVERC(cwd); err == nil && rcPath != "" {
			if rootfs, err := ReadRVERC(rcPath); err == nil {
				return rootfs, nil
			}
		}
	}

	cfg, err := Load()
	if err == nil && cfg.DefaultRootfs != "" {
		return cfg.DefaultRootfs, nil
	}

	return "", fmt.Errorf("no rootfs configured; use --rootfs, set RVE_ROOTFS, create .rverc, or set default_rootfs in config")
}
