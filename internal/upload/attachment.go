// Package upload stores invoice and payment attachments on disk and hands
// back the URL the row should keep.
package upload

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const MaxAttachmentSize = 10 << 20 // 10 MB

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// SaveAttachment validates the multipart file and writes it under dir with a
// uuid filename. Returns the public URL path ("/uploads/<name>").
func SaveAttachment(c *fiber.Ctx, file *multipart.FileHeader, dir string) (string, error) {
	if file.Size > MaxAttachmentSize {
		return "", fiber.NewError(fiber.StatusBadRequest, "Attachment exceeds the 10MB limit")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[ext] {
		return "", fiber.NewError(fiber.StatusBadRequest, "Only pdf, jpg, jpeg and png attachments are allowed")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fiber.NewError(fiber.StatusInternalServerError, "Could not prepare upload directory")
	}

	name := uuid.NewString() + ext
	if err := c.SaveFile(file, filepath.Join(dir, name)); err != nil {
		return "", fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("Could not store attachment: %v", err))
	}

	return "/uploads/" + name, nil
}
