package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// procMounts is the Linux mount table. Other platforms have no such file and
// every path is treated as local.
var procMounts = "/proc/mounts"

// networkFSTypes are the mount types treated as network storage
var networkFSTypes = []string{"nfs", "cifs", "smb", "ncpfs", "fuse.sshfs", "fuse.rclone", "9p"}

// MountInfo describes the filesystem a path lives on
type MountInfo struct {
	MountPath string
	FSType    string
	IsNetwork bool
}

// DetectMount finds the mount holding path
func DetectMount(path string) (*MountInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	f, err := os.Open(procMounts)
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	defer f.Close()

	mounts, err := parseMounts(f)
	if err != nil {
		return nil, err
	}
	return lookupMount(mounts, abs), nil
}

// IsNetworkPath reports whether path is on a network filesystem. Errors count
// as local.
func IsNetworkPath(path string) bool {
	info, err := DetectMount(path)
	if err != nil {
		return false
	}
	return info.IsNetwork
}

// parseMounts reads "device mountpoint fstype options dump pass" lines
func parseMounts(r io.Reader) (map[string]string, error) {
	mounts := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts[fields[1]] = fields[2]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse mount table: %w", err)
	}
	return mounts, nil
}

// lookupMount picks the longest mount point that contains path
func lookupMount(mounts map[string]string, path string) *MountInfo {
	info := &MountInfo{}
	for mountPoint, fsType := range mounts {
		if !withinMount(path, mountPoint) || len(mountPoint) <= len(info.MountPath) {
			continue
		}
		info.MountPath = mountPoint
		info.FSType = fsType
	}

	fsType := strings.ToLower(info.FSType)
	for _, t := range networkFSTypes {
		if fsType == t || strings.HasPrefix(fsType, t) {
			info.IsNetwork = true
			break
		}
	}
	return info
}

func withinMount(path, mountPoint string) bool {
	if mountPoint == "/" || path == mountPoint {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(mountPoint, "/")+"/")
}
