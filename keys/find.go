package keys

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"xdao.co/titlegate/errkind"
)

var (
	DefaultCertPattern = regexp.MustCompile(`\.pem$`)
	DefaultKeyPattern  = regexp.MustCompile(`_sk$`)
)

// FindFile returns the path of the first regular file in dir whose name
// matches pattern. os.ReadDir sorts by filename, so the choice is stable.
// Symlinks count when they resolve to a regular file, as in Kubernetes secret
// mounts.
func FindFile(dir string, pattern *regexp.Regexp) (string, error) {
	const op = "keys.FindFile"
	if dir == "" {
		return "", errkind.New(errkind.CredentialNotFound, op, "credential directory is not configured")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errkind.Wrap(errkind.CredentialNotFound, op, err)
		}
		return "", errkind.Wrap(errkind.CredentialUnreadable, op, err)
	}
	for _, e := range entries {
		if e.IsDir() || !pattern.MatchString(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if e.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		} else if !e.Type().IsRegular() {
			continue
		}
		return path, nil
	}
	return "", errkind.Newf(errkind.CredentialNotFound, op, "no file matching %s in %s", pattern, dir)
}

func readFile(op, path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkind.Wrap(errkind.CredentialNotFound, op, err)
		}
		return nil, errkind.Wrap(errkind.CredentialUnreadable, op, err)
	}
	return b, nil
}
