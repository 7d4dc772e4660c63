package metrics

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SystemInfo holds static host information captured once at startup
type SystemInfo struct {
	Hostname         string
	OS               string
	OSVersion        string
	Arch             string
	CPULogical       int
	GoVersion        string
	InContainer      bool
	ContainerRuntime string
}

var (
	systemInfoOnce sync.Once
	cachedInfo     *SystemInfo

	systemInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_info",
			Help:      "Static host information, value is always 1",
		},
		[]string{"hostname", "os", "os_version", "arch", "cpus", "go_version", "container"},
	)
)

// GetSystemInfo returns cached system information (captured once)
func GetSystemInfo() *SystemInfo {
	systemInfoOnce.Do(func() {
		cachedInfo = captureSystemInfo()
	})
	return cachedInfo
}

func recordSystemInfo() {
	info := GetSystemInfo()
	container := info.ContainerRuntime
	if !info.InContainer {
		container = "none"
	}
	systemInfo.WithLabelValues(
		info.Hostname,
		info.OS,
		info.OSVersion,
		info.Arch,
		strconv.Itoa(info.CPULogical),
		info.GoVersion,
		container,
	).Set(1)
}

// captureSystemInfo gathers system information
func captureSystemInfo() *SystemInfo {
	info := &SystemInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPULogical: runtime.NumCPU(),
		GoVersion:  runtime.Version(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	} else {
		info.Hostname = "unknown"
	}

	info.InContainer, info.ContainerRuntime = detectContainer()
	info.OSVersion = getOSVersion()

	return info
}

// detectContainer checks if running in a container
func detectContainer() (bool, string) {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true, "docker"
	}

	if _, err := os.Stat("/var/run/secrets/kubernetes.io"); err == nil {
		return true, "kubernetes"
	}

	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		switch {
		case strings.Contains(content, "docker"):
			return true, "docker"
		case strings.Contains(content, "kubepods"):
			return true, "kubernetes"
		case strings.Contains(content, "containerd"):
			return true, "containerd"
		}
	}

	return false, ""
}

// getOSVersion reads the distribution name on Linux
func getOSVersion() string {
	if runtime.GOOS != "linux" {
		return runtime.GOOS
	}

	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return "linux"
	}
	return parseOSRelease(string(data))
}

func parseOSRelease(content string) string {
	var name, version string
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "PRETTY_NAME="):
			return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
		case strings.HasPrefix(line, "NAME="):
			name = strings.Trim(strings.TrimPrefix(line, "NAME="), "\"")
		case strings.HasPrefix(line, "VERSION="):
			version = strings.Trim(strings.TrimPrefix(line, "VERSION="), "\"")
		}
	}
	switch {
	case name != "" && version != "":
		return name + " " + version
	case name != "":
		return name
	default:
		return "linux"
	}
}
