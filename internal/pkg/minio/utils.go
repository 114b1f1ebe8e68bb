package minio

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"unicode/utf8"
)

const maxObjectNameLen = 1024

var (
	reservedBucketPrefixes = []string{"xn--", "sthree-", "amzn-s3-demo-"}
	reservedBucketSuffixes = []string{"-s3alias", "--ol-s3", "--x-s3"}
)

// ValidateBucketName applies the S3 bucket naming rules used by both MinIO and AWS
func ValidateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return errors.New("bucket name must be between 3 and 63 characters long")
	}
	if net.ParseIP(name) != nil {
		return errors.New("bucket name cannot be formatted as an IP address")
	}
	if !isBucketEdge(name[0]) || !isBucketEdge(name[len(name)-1]) {
		return errors.New("bucket name must start and end with a lowercase letter or number")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !isBucketEdge(c) && c != '-' && c != '.' {
			return fmt.Errorf("bucket name contains invalid character %q", c)
		}
	}
	if strings.Contains(name, "..") || strings.Contains(name, ".-") || strings.Contains(name, "-.") {
		return errors.New("bucket name cannot contain adjacent periods or hyphens next to periods")
	}
	for _, p := range reservedBucketPrefixes {
		if strings.HasPrefix(name, p) {
			return fmt.Errorf("bucket name cannot start with %q", p)
		}
	}
	for _, s := range reservedBucketSuffixes {
		if strings.HasSuffix(name, s) {
			return fmt.Errorf("bucket name cannot end with %q", s)
		}
	}
	return nil
}

// ValidateObjectName rejects keys MinIO cannot store
func ValidateObjectName(name string) error {
	switch {
	case name == "":
		return errors.New("object name cannot be empty")
	case len(name) > maxObjectNameLen:
		return fmt.Errorf("object name cannot exceed %d bytes", maxObjectNameLen)
	case !utf8.ValidString(name):
		return errors.New("object name must be valid UTF-8")
	case strings.ContainsRune(name, 0):
		return errors.New("object name cannot contain null bytes")
	}
	return nil
}

func isBucketEdge(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
