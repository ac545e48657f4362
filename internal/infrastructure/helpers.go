package infrastructure

import (
	"path"
	"strings"

	"github.com/DRSN-tech/visual-search/pkg/e"
)

// GetExtensionFromMIME возвращает расширение файла по MIME-типу изображения.
// Поддерживает jpeg, jpg, png, gif, webp. Возвращает ошибку e.ErrUnsupportedMediaType для неподдерживаемых типов.
func GetExtensionFromMIME(mime string) (string, error) {
	switch mime {
	case "image/jpeg", "image/jpg":
		return "jpg", nil
	case "image/png":
		return "png", nil
	case "image/gif":
		return "gif", nil
	case "image/webp":
		return "webp", nil
	default:
		return "bin", e.ErrUnsupportedMediaType
	}
}

// SanitizeFilename оставляет от имени файла только базовое имя без разделителей пути и пробелов.
// Пустое имя заменяется на "image.<ext>".
func SanitizeFilename(filename, contentType string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, name)

	if name == "" || name == "." || name == "/" || name == ".." {
		ext, _ := GetExtensionFromMIME(contentType)
		return "image." + ext
	}

	return name
}
