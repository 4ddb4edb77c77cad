package report

import (
	"bytes"
	"image"
	"image/jpeg"
	"strings"

	_ "image/gif"
	_ "image/png"

	"github.com/nfnt/resize"

	"github.com/Hocaabinn/sampah-keren-sub001/internal/model"
)

const (
	maxPhotos     = 5
	maxPhotoBytes = 5 << 20
	thumbnailEdge = 320
)

type PhotoUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// NormalizePhotos applies the attachment rules: at most five entries, each
// image-typed and no larger than 5 MB. Violating entries are dropped
// silently, order of the survivors is preserved.
func NormalizePhotos(uploads []PhotoUpload) []model.Photo {
	photos := make([]model.Photo, 0, maxPhotos)
	for _, upload := range uploads {
		if len(photos) == maxPhotos {
			break
		}
		if !strings.HasPrefix(upload.ContentType, "image/") {
			continue
		}
		if int64(len(upload.Data)) > maxPhotoBytes || len(upload.Data) == 0 {
			continue
		}
		photos = append(photos, model.Photo{
			FileName:    upload.FileName,
			ContentType: upload.ContentType,
			Size:        int64(len(upload.Data)),
			Data:        upload.Data,
			Thumbnail:   makeThumbnail(upload.Data),
		})
	}
	return photos
}

// makeThumbnail returns nil when the bytes do not decode; the original
// upload is still kept.
func makeThumbnail(data []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	thumb := resize.Thumbnail(thumbnailEdge, thumbnailEdge, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return nil
	}
	return buf.Bytes()
}
