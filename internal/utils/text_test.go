package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"notes.txt":           "notes.txt",
		"my report (v2).pdf":  "my_report__v2_.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\cv.docx`: "cv.docx",
		"..":                  "file",
		"":                    "file",
		"résumé.md":           "r_sum_.md",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "22 B", HumanSize(22))
	assert.Equal(t, "1.5 kB", HumanSize(1500))
	assert.Equal(t, "0 B", HumanSize(-1))
}
