package extract

import (
	"path/filepath"
	"strings"
)

// Kind is the closed set of document formats the extractor understands.
type Kind int

const (
	KindUnsupported Kind = iota
	KindText
	KindPDF
	KindDOCX
	KindImage
)

var kindNames = [...]string{
	KindUnsupported: "unsupported",
	KindText:        "text",
	KindPDF:         "pdf",
	KindDOCX:        "docx",
	KindImage:       "image",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

var kindsByExt = map[string]Kind{
	".txt":  KindText,
	".md":   KindText,
	".py":   KindText,
	".js":   KindText,
	".html": KindText,
	".css":  KindText,
	".json": KindText,
	".csv":  KindText,
	".sql":  KindText,
	".pdf":  KindPDF,
	".docx": KindDOCX,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".webp": KindImage,
	".heic": KindImage,
}

// KindForFilename classifies a file by its extension, case-insensitively.
func KindForFilename(name string) Kind {
	if k, ok := kindsByExt[Ext(name)]; ok {
		return k
	}
	return KindUnsupported
}

// Ext returns the lower-cased extension including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
