// Package platform detects the host environment so callers can pick the
// right clipboard tool and decide whether filesystem watching is reliable.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform identifies the detected host environment.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Detect returns the current platform. Detection runs once and is cached.
func Detect() Platform {
	detectOnce.Do(func() {
		detected = detectPlatform()
	})
	return detected
}

func detectPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		return detectLinuxOrWSL()
	default:
		return PlatformUnknown
	}
}

// detectLinuxOrWSL tells native Linux apart from WSL, which matters because
// WSL clipboards go through clip.exe and WSL2 mounts Windows drives over 9p.
func detectLinuxOrWSL() Platform {
	if os.Getenv("WSL_DISTRO_NAME") != "" {
		return detectWSLVersion()
	}

	procVersion, err := os.ReadFile("/proc/version")
	if err != nil {
		return PlatformLinux
	}
	if strings.Contains(strings.ToLower(string(procVersion)), "microsoft") {
		return detectWSLVersion()
	}
	return PlatformLinux
}

func detectWSLVersion() Platform {
	// WSL2 kernels carry "microsoft-standard"; WSL1 reports capital
	// "Microsoft" without it.
	procVersion, err := os.ReadFile("/proc/version")
	if err == nil {
		s := string(procVersion)
		if strings.Contains(s, "microsoft-standard") {
			return PlatformWSL2
		}
		if strings.Contains(s, "Microsoft") {
			return PlatformWSL1
		}
	}

	// /run/WSL and /dev/vsock only exist under WSL2's VM.
	if _, err := os.Stat("/run/WSL"); err == nil {
		return PlatformWSL2
	}
	if _, err := os.Stat("/dev/vsock"); err == nil {
		return PlatformWSL2
	}

	// WSL1 is the more limited environment, so assume it when unsure.
	return PlatformWSL1
}

// String returns a human-readable platform name.
func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// CheckFsnotifySupport reports whether the filesystem holding path delivers
// inotify events reliably. It returns a warning string for known-problematic
// mounts (9p, NFS, CIFS, SSHFS) and "" when watching should work. Vault
// stores on such mounts still function, but external index changes are only
// picked up on manual refresh.
func CheckFsnotifySupport(path string) string {
	// Only Linux mounts filesystems this way; WSL2 reaches Windows drives
	// over 9p.
	if runtime.GOOS != "linux" {
		return ""
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}

	// /proc/mounts lines are "device mountpoint fstype options ...". The
	// longest mountpoint prefix of the path wins.
	var matchedMount, matchedFsType string
	for _, line := range strings.Split(string(mounts), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mountPoint, fsType := fields[1], fields[2]
		if strings.HasPrefix(absPath, mountPoint) && len(mountPoint) > len(matchedMount) {
			matchedMount = mountPoint
			matchedFsType = fsType
		}
	}

	switch {
	case matchedFsType == "9p":
		return "vault is on a 9p mount (WSL2 Windows drive): file watching is unreliable, refresh manually"
	case matchedFsType == "nfs" || matchedFsType == "nfs4":
		return "vault is on an NFS mount: file watching may miss changes, refresh manually"
	case matchedFsType == "cifs" || matchedFsType == "smbfs":
		return "vault is on a CIFS/SMB mount: file watching may miss changes, refresh manually"
	case strings.HasPrefix(matchedFsType, "fuse.sshfs"):
		return "vault is on an SSHFS mount: file watching is unreliable, refresh manually"
	}
	return ""
}
