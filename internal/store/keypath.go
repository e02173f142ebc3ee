package store

import (
	"encoding/base64"
	"fmt"
)

// Namespace is the container path under which every task and rescan
// marker lives.
const Namespace = "/splitlog"

// RescanPrefix names the ephemeral sequential rescan marker children.
const RescanPrefix = Namespace + "/rescan-"

// EncodeTaskKey reversibly maps a log file path to a task key: a
// base64url encoding (no padding, so it is filesystem/path-segment
// safe) of the raw path, prefixed with the coordinator namespace. Two
// distinct log paths always produce two distinct keys, and the
// mapping round-trips through DecodeTaskKey.
func EncodeTaskKey(logPath string) string {
	return Namespace + "/" + base64.RawURLEncoding.EncodeToString([]byte(logPath))
}

// DecodeTaskKey recovers the original log file path from a task key
// produced by EncodeTaskKey.
func DecodeTaskKey(key string) (string, error) {
	prefix := Namespace + "/"
	if len(key) < len(prefix) || key[:len(prefix)] != prefix {
		return "", fmt.Errorf("store: %q is not a task key under %s", key, Namespace)
	}
	encoded := key[len(prefix):]
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// IsRescanMarker reports whether key names a rescan marker rather than
// a real task.
func IsRescanMarker(key string) bool {
	if len(key) < len(RescanPrefix) {
		return false
	}
	return key[:len(RescanPrefix)] == RescanPrefix
}
