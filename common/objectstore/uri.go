package objectstore

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pulse/vidmod/common/apperrors"
)

// Location is a parsed scheme://bucket/key blob address
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// String renders the canonical URI form
func (l Location) String() string {
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

// bucket names follow the S3/GCS DNS-compatible rules
var bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,61}[a-z0-9]$`)

// ParseURI validates raw against the canonical scheme://bucket/key form.
// An empty wantScheme accepts any scheme.
func ParseURI(raw, wantScheme string) (Location, error) {
	const op = "objectstore.ParseURI"

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Location{}, apperrors.New(apperrors.KindInvalidArgument, op, "storage uri is empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return Location{}, apperrors.Wrap(apperrors.KindInvalidArgument, op, "malformed storage uri", err)
	}
	if parsed.Scheme == "" {
		return Location{}, apperrors.New(apperrors.KindInvalidArgument, op, "storage uri has no scheme")
	}
	if wantScheme != "" && !strings.EqualFold(parsed.Scheme, wantScheme) {
		return Location{}, apperrors.New(apperrors.KindInvalidArgument, op,
			fmt.Sprintf("unexpected storage uri scheme %q", parsed.Scheme))
	}
	if parsed.User != nil || parsed.RawQuery != "" || parsed.Fragment != "" {
		return Location{}, apperrors.New(apperrors.KindInvalidArgument, op, "storage uri must not carry credentials, query or fragment")
	}

	bucket := parsed.Host
	if bucket == "" {
		return Location{}, apperrors.New(apperrors.KindInvalidArgument, op, "storage uri has no bucket")
	}
	if !bucketPattern.MatchString(bucket) {
		return Location{}, apperrors.New(apperrors.KindInvalidArgument, op, fmt.Sprintf("invalid bucket name %q", bucket))
	}

	key := strings.TrimPrefix(parsed.Path, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return Location{}, apperrors.New(apperrors.KindInvalidArgument, op, "storage uri has no object key")
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." || segment == "." || segment == "" {
			return Location{}, apperrors.New(apperrors.KindInvalidArgument, op, "storage uri key is not canonical")
		}
	}

	return Location{
		Scheme: strings.ToLower(parsed.Scheme),
		Bucket: bucket,
		Key:    key,
	}, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// NewObjectKey builds a unique key <prefix>/<owner>/<uuid><ext> for an upload
func NewObjectKey(prefix, owner, filename string) string {
	safeOwner := unsafeKeyChars.ReplaceAllString(owner, "_")
	if safeOwner == "" {
		safeOwner = "anonymous"
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && unsafeKeyChars.MatchString(ext[1:]) {
		ext = ""
	}

	name := safeOwner + "/" + uuid.New().String() + ext
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
