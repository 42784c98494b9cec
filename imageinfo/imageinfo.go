// Package imageinfo collects the metadata that the script packager embeds
// verbatim into a reconstruction script: permissions, ownership,
// timestamps, ACL text, and content digests of the image file. It
// implements the external collaborator named IMAGEINFO.
package imageinfo

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/minio/sha256-simd"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Info is the fixed metadata record the core's Script Packager renders
// into the emitted script. Only Size is consumed by the core itself; every
// other field is opaque to it and rendered verbatim.
type Info struct {
	Size        uint64
	Permissions os.FileMode
	UID         uint32
	GID         uint32
	Owner       string
	Group       string
	Atime       int64
	Mtime       int64
	Ctime       int64
	MD5         string
	SHA256      string
	ACL         string
	HasACL      bool
}

// Collect gathers Info for path. Owner/group name lookup and ACL capture
// are best-effort: failures there are aggregated as non-fatal warnings via
// multierr rather than aborting collection, since every other field
// remains usable without them.
func Collect(ctx context.Context, path string) (Info, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Info{}, fmt.Errorf("imageinfo: stat %s: %w", path, err)
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return Info{}, fmt.Errorf("imageinfo: %s: platform does not expose syscall.Stat_t", path)
	}

	info := Info{
		Size:        uint64(fi.Size()),
		Permissions: fi.Mode().Perm(),
		UID:         st.Uid,
		GID:         st.Gid,
		Atime:       timespecToUnix(st.Atim),
		Mtime:       timespecToUnix(st.Mtim),
		Ctime:       timespecToUnix(st.Ctim),
	}

	var warnings error

	if u, err := user.LookupId(strconv.FormatUint(uint64(st.Uid), 10)); err != nil {
		warnings = multierr.Append(warnings, fmt.Errorf("imageinfo: looking up owner name for uid %d: %w", st.Uid, err))
	} else {
		info.Owner = u.Username
	}

	if g, err := user.LookupGroupId(strconv.FormatUint(uint64(st.Gid), 10)); err != nil {
		warnings = multierr.Append(warnings, fmt.Errorf("imageinfo: looking up group name for gid %d: %w", st.Gid, err))
	} else {
		info.Group = g.Name
	}

	if acl, err := collectACL(ctx, path); err != nil {
		warnings = multierr.Append(warnings, err)
	} else if acl != "" {
		info.ACL = acl
		info.HasACL = true
	}

	md5sum, sha256sum, err := digest(path)
	if err != nil {
		return Info{}, err
	}
	info.MD5 = md5sum
	info.SHA256 = sha256sum

	if warnings != nil {
		klog.Warningf("imageinfo: non-fatal collection warnings for %s: %v", path, warnings)
	}

	return info, nil
}

func collectACL(ctx context.Context, path string) (string, error) {
	if _, err := exec.LookPath("getfacl"); err != nil {
		return "", fmt.Errorf("imageinfo: getfacl not found on PATH, ACL will not be recorded: %w", err)
	}
	out, err := exec.CommandContext(ctx, "getfacl", "--absolute-names", path).Output()
	if err != nil {
		return "", fmt.Errorf("imageinfo: running getfacl on %s: %w", path, err)
	}
	return string(out), nil
}

// digest computes the MD5 and SHA-256 of path via two independent
// sequential passes launched concurrently, joined before returning — the
// one concurrency point this system mandates.
func digest(path string) (md5Hex, sha256Hex string, err error) {
	g, _ := errgroup.WithContext(context.Background())

	g.Go(func() error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("imageinfo: opening %s for md5: %w", path, err)
		}
		defer f.Close()

		h := md5.New()
		if _, err := io.Copy(h, f); err != nil {
			return fmt.Errorf("imageinfo: hashing %s with md5: %w", path, err)
		}
		md5Hex = hex.EncodeToString(h.Sum(nil))
		return nil
	})

	g.Go(func() error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("imageinfo: opening %s for sha256: %w", path, err)
		}
		defer f.Close()

		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return fmt.Errorf("imageinfo: hashing %s with sha256: %w", path, err)
		}
		sha256Hex = hex.EncodeToString(h.Sum(nil))
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return md5Hex, sha256Hex, nil
}

func timespecToUnix(ts syscall.Timespec) int64 {
	return ts.Sec
}
