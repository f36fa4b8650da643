// Package blob 是图片上传协作方：接收 data URL 或 http(s) URL，返回稳定的访问 URL。
package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MaxImageBytes 限制单张图片解码后的大小。
const MaxImageBytes = 5 << 20

var ErrUploadFailed = errors.New("upload failed")

// ErrInvalidImage 表示引用本身不可用（格式、大小或内容类型），属于调用方错误。
var ErrInvalidImage = fmt.Errorf("%w: invalid image", ErrUploadFailed)

type Uploader interface {
	Upload(ctx context.Context, ref string) (string, error)
}

// Image 是解码并通过类型嗅探的图片数据。
type Image struct {
	Data      []byte
	MIME      string
	Extension string
}

// IsRemote 判断 ref 是否为已可访问的 http(s) URL，此类引用原样返回不再转存。
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// IsImageRef 是请求校验用的格式检查。
func IsImageRef(ref string) bool {
	return strings.HasPrefix(ref, "data:image/") || IsRemote(ref)
}

// DecodeDataURL 解析 base64 data URL，并以内容嗅探而非声明的类型为准。
func DecodeDataURL(ref string) (*Image, error) {
	if !strings.HasPrefix(ref, "data:") {
		return nil, fmt.Errorf("%w: not a data url", ErrInvalidImage)
	}
	meta, payload, ok := strings.Cut(ref[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: data url must be base64 encoded", ErrInvalidImage)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+3 {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidImage, MaxImageBytes)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 || len(data) > MaxImageBytes {
		return nil, fmt.Errorf("%w: invalid image size %d", ErrInvalidImage, len(data))
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: content is %s, not an image", ErrInvalidImage, mt.String())
	}
	return &Image{Data: data, MIME: mt.String(), Extension: mt.Extension()}, nil
}

// objectKey 生成按日期分桶的对象名。
func objectKey(ext string, now time.Time) string {
	return fmt.Sprintf("images/%04d/%02d/%02d/%s%s", now.Year(), now.Month(), now.Day(), uuid.NewString(), ext)
}
