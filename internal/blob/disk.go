package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Disk 把图片写到本地目录，由 HTTP 层以 BaseURL 静态托管，用于开发环境。
type Disk struct {
	Dir     string
	BaseURL string
}

func NewDisk(dir, baseURL string) *Disk {
	return &Disk{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (d *Disk) Upload(_ context.Context, ref string) (string, error) {
	if IsRemote(ref) {
		return ref, nil
	}
	img, err := DecodeDataURL(ref)
	if err != nil {
		return "", err
	}
	key := objectKey(img.Extension, time.Now().UTC())
	path := filepath.Join(d.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return d.BaseURL + "/" + key, nil
}
