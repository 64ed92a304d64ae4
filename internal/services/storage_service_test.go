// internal/services/storage_service_test.go
package services

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinbech/backend/internal/apperrors"
	"github.com/kinbech/backend/internal/config"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func storageFixture(t *testing.T) *StorageService {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Port: "8080"},
		Trade:  config.TradeConfig{MessageImageMaxSizeMB: 1},
	}
	svc, err := NewStorageService(cfg)
	require.NoError(t, err)
	return svc
}

func multipartImage(t *testing.T, filename string, content []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	file, header, err := req.FormFile("image")
	require.NoError(t, err)
	return file, header
}

func TestUploadTradeImageLocalFallback(t *testing.T) {
	svc := storageFixture(t)
	file, header := multipartImage(t, "photo.png", pngHeader)
	defer file.Close()

	result, err := svc.UploadTradeImage(file, header)
	require.NoError(t, err)

	assert.Contains(t, result.URL, "/uploads/trade-messages/")
	assert.Contains(t, result.Key, ".png")
	assert.Equal(t, int64(len(pngHeader)), result.Size)
}

func TestUploadTradeImageRejectsWrongExtension(t *testing.T) {
	svc := storageFixture(t)
	file, header := multipartImage(t, "notes.pdf", pngHeader)
	defer file.Close()

	_, err := svc.UploadTradeImage(file, header)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestUploadTradeImageRejectsFakeImage(t *testing.T) {
	svc := storageFixture(t)
	file, header := multipartImage(t, "photo.png", []byte("just text pretending"))
	defer file.Close()

	_, err := svc.UploadTradeImage(file, header)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestUploadTradeImageEnforcesSizeLimit(t *testing.T) {
	svc := storageFixture(t)
	oversized := append(append([]byte{}, pngHeader...), make([]byte, 2*1024*1024)...)
	file, header := multipartImage(t, "big.png", oversized)
	defer file.Close()

	_, err := svc.UploadTradeImage(file, header)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestImageSignatures(t *testing.T) {
	assert.True(t, isImageSignature([]byte{0xFF, 0xD8, 0xFF, 0xE0}))
	assert.True(t, isImageSignature(pngHeader))
	assert.True(t, isImageSignature([]byte("GIF89a...")))
	assert.False(t, isImageSignature([]byte("<html>")))
}
