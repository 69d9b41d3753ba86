// Package uploads sends receipt images to Google Cloud Storage.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Veraticus/tandem/internal/common"
	"github.com/Veraticus/tandem/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"
)

// Config holds the bucket and credentials for GCSUploader.
type Config struct {
	Bucket          string
	Prefix          string // Object name prefix, e.g. "receipts"
	CredentialsFile string // Service account key; takes precedence over the OAuth2 fields
	ClientID        string
	ClientSecret    string
	RefreshToken    string
	Endpoint        string // Overrides the API endpoint without authentication, for emulators
}

// Validate checks that the config can produce a working client.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("%w: uploads.bucket is required", common.ErrMissingConfig)
	}
	if c.Endpoint != "" || c.CredentialsFile != "" {
		return nil
	}
	if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
		return fmt.Errorf("%w: uploads needs credentials_file or client_id, client_secret and refresh_token",
			common.ErrMissingConfig)
	}
	return nil
}

// GCSUploader uploads receipt images into a bucket.
type GCSUploader struct {
	service *storage.Service
	logger  *slog.Logger
	config  Config
}

// NewGCSUploader creates an uploader from config.
func NewGCSUploader(ctx context.Context, config Config, logger *slog.Logger) (*GCSUploader, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	service, err := createStorageService(ctx, config)
	if err != nil {
		return nil, err
	}

	return &GCSUploader{service: service, config: config, logger: logger}, nil
}

func createStorageService(ctx context.Context, config Config) (*storage.Service, error) {
	if config.Endpoint != "" {
		return storage.NewService(ctx,
			option.WithEndpoint(config.Endpoint),
			option.WithoutAuthentication())
	}

	var tokenSource oauth2.TokenSource
	if config.CredentialsFile != "" {
		jsonKey, err := os.ReadFile(config.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, storage.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{storage.DevstorageReadWriteScope},
		}
		tokenSource = client.TokenSource(ctx, &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		})
	}

	service, err := storage.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	if err != nil {
		return nil, fmt.Errorf("unable to create storage service: %w", err)
	}
	return service, nil
}

// Upload reads the image at upload.ImageRef and stores it under
// prefix/owner/context/. It returns a gs:// reference to the object. Missing
// files and client errors other than auth failures are marked non-retryable.
func (u *GCSUploader) Upload(ctx context.Context, upload model.Upload) (string, error) {
	data, err := os.ReadFile(upload.ImageRef)
	if err != nil {
		return "", &common.RetryableError{
			Err:       fmt.Errorf("reading receipt image: %w", err),
			Retryable: !errors.Is(err, os.ErrNotExist),
		}
	}

	data, contentType, err := NormalizeImage(data, upload.ContentType)
	if err != nil {
		return "", &common.RetryableError{Err: err, Retryable: false}
	}

	object := &storage.Object{
		Name:        u.objectName(upload, contentType),
		ContentType: contentType,
		Metadata: map[string]string{
			"owner_id":   upload.OwnerID,
			"context_id": upload.ContextID,
		},
	}

	stored, err := u.service.Objects.Insert(u.config.Bucket, object).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return "", classifyError(fmt.Errorf("uploading %s: %w", object.Name, err))
	}

	ref := fmt.Sprintf("gs://%s/%s", u.config.Bucket, stored.Name)
	u.logger.Info("Uploaded receipt",
		"ref", ref,
		"bytes", len(data),
		"content_type", contentType)
	return ref, nil
}

func (u *GCSUploader) objectName(upload model.Upload, contentType string) string {
	base := filepath.Base(upload.ImageRef)
	if contentType == "image/jpeg" && !strings.EqualFold(filepath.Ext(base), ".jpg") &&
		!strings.EqualFold(filepath.Ext(base), ".jpeg") {
		base = strings.TrimSuffix(base, filepath.Ext(base)) + ".jpg"
	}

	owner := upload.OwnerID
	if owner == "" {
		owner = "unknown"
	}
	parts := []string{owner}
	if upload.ContextID != "" {
		parts = append(parts, upload.ContextID)
	}
	parts = append(parts, base)
	if u.config.Prefix != "" {
		parts = append([]string{strings.Trim(u.config.Prefix, "/")}, parts...)
	}
	return path.Join(parts...)
}

// classifyError marks 4xx responses as permanent, except timeouts, rate limits
// and auth failures. Expired credentials and IAM changes clear up on their own,
// so 401 and 403 stay retryable.
func classifyError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusUnauthorized, http.StatusForbidden:
		return err
	}
	if apiErr.Code >= 400 && apiErr.Code < 500 {
		return &common.RetryableError{Err: err, Retryable: false}
	}
	return err
}
