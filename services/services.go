package services

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/skip2/go-qrcode"

	"taskdeploy-backend/models"
)

// DefaultQRSize is the edge length in pixels of generated codes.
const DefaultQRSize = 256

// QRCodeService renders project links as QR codes
type QRCodeService struct {
	pagesURL func(project string) string
}

// NewQRCodeService creates a new QR code service
func NewQRCodeService(pagesURL func(string) string) *QRCodeService {
	return &QRCodeService{pagesURL: pagesURL}
}

// ProjectQRCode returns a PNG QR code pointing at the project's public URL.
func (s *QRCodeService) ProjectQRCode(project string, size int) ([]byte, error) {
	if size <= 0 || size > 1024 {
		size = DefaultQRSize
	}
	return s.GenerateQRCode(s.pagesURL(project), size)
}

// GenerateQRCode encodes content as a PNG QR code.
func (s *QRCodeService) GenerateQRCode(content string, size int) ([]byte, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// HealthService handles health check business logic
type HealthService struct {
	driver string
}

// NewHealthService creates a new health service
func NewHealthService(driver string) *HealthService {
	return &HealthService{driver: driver}
}

// GetHealthStatus returns current health status
func (s *HealthService) GetHealthStatus() *models.HealthResponse {
	return &models.HealthResponse{
		Status:    "healthy",
		Message:   "Task deployment service is running",
		Driver:    s.driver,
		Timestamp: time.Now().Unix(),
	}
}
