// Package platform collects immutable host facts once, before the manifest
// is evaluated. Manifests consume them as Pkl external properties, which
// keeps distro branching (apt vs dnf package names) out of the engine.
package platform

import (
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// Facts describes the host a run provisions.
type Facts struct {
	OS             string
	Arch           string
	Family         string // debian, rhel, suse, alpine, or the OS name
	PackageManager string
	Hostname       string
	Privileged     bool
	// DiskFreeMB is the free space on the root filesystem. Zero when the
	// platform offers no way to ask.
	DiskFreeMB uint64
}

// Collect gathers facts for the current host.
func Collect() *Facts {
	f := &Facts{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Privileged: os.Geteuid() == 0,
	}
	if hostname, err := os.Hostname(); err == nil {
		f.Hostname = hostname
	}
	f.DiskFreeMB = diskFreeMB("/")

	switch runtime.GOOS {
	case "linux":
		if data, err := os.ReadFile("/etc/os-release"); err == nil {
			f.Family = familyFromOSRelease(string(data))
		}
		f.PackageManager = detectPackageManager()
	default:
		f.Family = runtime.GOOS
	}
	return f
}

// Properties renders the facts as Pkl external properties.
func (f *Facts) Properties() map[string]string {
	return map[string]string{
		"facts.os":         f.OS,
		"facts.arch":       f.Arch,
		"facts.family":     f.Family,
		"facts.pkgManager": f.PackageManager,
		"facts.hostname":   f.Hostname,
		"facts.diskFreeMb": strconv.FormatUint(f.DiskFreeMB, 10),
	}
}

// Env renders the facts as environment variables for step commands.
func (f *Facts) Env() map[string]string {
	return map[string]string{
		"PROVISOR_OS":       f.OS,
		"PROVISOR_ARCH":     f.Arch,
		"PROVISOR_FAMILY":   f.Family,
		"PROVISOR_PKG_MGR":  f.PackageManager,
		"PROVISOR_HOSTNAME": f.Hostname,
	}
}

var familyAliases = map[string]string{
	"debian": "debian", "ubuntu": "debian", "raspbian": "debian",
	"rhel": "rhel", "centos": "rhel", "fedora": "rhel", "rocky": "rhel", "almalinux": "rhel",
	"sles": "suse", "opensuse": "suse", "opensuse-leap": "suse",
	"alpine": "alpine",
}

// familyFromOSRelease maps ID/ID_LIKE values to a distro family.
func familyFromOSRelease(data string) string {
	var id, idLike string
	for _, line := range strings.Split(data, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch key {
		case "ID":
			id = value
		case "ID_LIKE":
			idLike = value
		}
	}

	if family, ok := familyAliases[id]; ok {
		return family
	}
	for _, like := range strings.Fields(idLike) {
		if family, ok := familyAliases[like]; ok {
			return family
		}
	}
	return id
}

func detectPackageManager() string {
	for _, pm := range []string{"apt-get", "dnf", "yum", "zypper", "apk"} {
		if _, err := exec.LookPath(pm); err == nil {
			return pm
		}
	}
	return ""
}
