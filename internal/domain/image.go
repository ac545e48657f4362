package domain

// Image описывает изображение, которое хранится в S3
type Image struct {
	Filename    string
	Bucket      string
	ObjectKey   string
	Data        []byte
	ContentType string // Example: "image/jpeg"
}

func NewImage(filename, bucket, objectKey string, data []byte, contentType string) *Image {
	return &Image{
		Filename:    filename,
		Bucket:      bucket,
		ObjectKey:   objectKey,
		Data:        data,
		ContentType: contentType,
	}
}

// Size возвращает размер изображения в байтах.
func (i *Image) Size() int64 {
	return int64(len(i.Data))
}
